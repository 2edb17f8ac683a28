package stap

import "tracesig/pkg/models"

// Filter selects events from a replayed trace. A zero Category matches
// any category.
type Filter struct {
	PID      int
	Category string
}

// FilteredStream is a lazy projection of a parser's output restricted to
// one process (and optionally one category). Each traversal re-drives a
// full trace replay, so independent streams never interfere; the cost is
// one full scan per traversal.
type FilteredStream struct {
	parser *Parser
	filter Filter
}

// NewFilteredStream creates a filtered view over the parser.
func NewFilteredStream(p *Parser, f Filter) *FilteredStream {
	return &FilteredStream{parser: p, filter: f}
}

// Each replays the trace, invoking fn for each matching event until it
// returns false.
func (fs *FilteredStream) Each(fn func(*models.SyscallEvent) bool) {
	fs.parser.Each(func(ev *models.SyscallEvent) bool {
		if ev.PID != fs.filter.PID {
			return true
		}
		if fs.filter.Category != "" && ev.Category != fs.filter.Category {
			return true
		}
		return fn(ev)
	})
}

var _ models.CallStream = (*FilteredStream)(nil)
