package rules

import "tracesig/internal/signatures"

// Engine supplies signature instances for an analysis run.
type Engine interface {
	Signatures() []signatures.Signature
}

// NoopEngine supplies no signatures.
type NoopEngine struct{}

// Signatures returns an empty signature list.
func (n *NoopEngine) Signatures() []signatures.Signature {
	return nil
}
