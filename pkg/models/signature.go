package models

import "time"

// SignatureFlag is a named, timestamped breadcrumb a signature leaves for
// itself to coordinate logic across non-adjacent calls.
type SignatureFlag struct {
	Name      string    `json:"name"`
	PID       int       `json:"pid"`
	TID       int       `json:"tid"`
	Timestamp time.Time `json:"timestamp"`
}

// Sign is one piece of match evidence.
type Sign struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// MatchProcess identifies the process a match record is anchored to.
type MatchProcess struct {
	ProcessName string `json:"process_name"`
	ProcessID   int    `json:"process_id"`
}

// MatchRecord is the evidence accumulated by one add-match call.
type MatchRecord struct {
	Process *MatchProcess `json:"process"`
	Signs   []Sign        `json:"signs"`
}

// Marker anchors a point in the trace by process, thread and call index.
type Marker struct {
	PID int `json:"pid"`
	TID int `json:"tid"`
	CID int `json:"cid"`
}

// MarkerPair bounds the span of the trace a match refers to. End is only
// meaningful when Start was set first.
type MarkerPair struct {
	Start Marker  `json:"start"`
	End   *Marker `json:"end,omitempty"`
}

// SignatureResult is the serialized outcome of one signature.
type SignatureResult struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Severity    int           `json:"severity"`
	References  []string      `json:"references"`
	Data        []MatchRecord `json:"data"`
	Marker      *MarkerPair   `json:"marker"`
	Alert       bool          `json:"alert"`
	Families    []string      `json:"families"`
}
