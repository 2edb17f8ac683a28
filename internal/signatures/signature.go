package signatures

import (
	"regexp"

	"tracesig/internal/logger"
	"tracesig/pkg/models"
)

// Signature is a behavior detection rule driven call-by-call over the
// reconstructed event stream. Quickout, OnCall, OnSignature and
// OnComplete carry no default implementation: a concrete signature must
// supply them. OnProcess and OnThread default to no-ops via Base.
type Signature interface {
	// State exposes the shared per-instance bookkeeping.
	State() *Base

	// Quickout reports whether the signature should be removed from the
	// active set before receiving any call.
	Quickout() bool

	// OnCall inspects one eligible API call. Returning false signals the
	// signature is done and deactivates it.
	OnCall(call *models.SyscallEvent, pid, tid int) bool

	// OnSignature is invoked when a different signature has matched.
	OnSignature(matched Signature)

	// OnProcess is invoked on process boundary transitions.
	OnProcess(pid int)

	// OnThread is invoked on thread boundary transitions.
	OnThread(pid, tid int)

	// OnComplete performs final evaluation after the call stream is
	// exhausted and reports whether the signature matched.
	OnComplete() bool
}

// Base carries the state and query helpers shared by all signatures.
// Filter slices advertise which process names, API names and categories
// the dispatcher should route to the signature; empty means all. Each
// instance owns its own filter slices.
type Base struct {
	Name        string
	Description string
	Severity    int
	Categories  []string
	Families    []string
	Authors     []string
	References  []string
	Alert       bool
	Enabled     bool

	FilterProcessNames []string
	FilterAPINames     []string
	FilterCategories   []string

	results *models.Results
	data    []models.MatchRecord
	flags   Flags

	pid, tid, cid int
	markStart     *models.Marker
	markEnd       *models.Marker
	active        bool
}

// Init binds the signature to an analysis run and activates it.
func (b *Base) Init(results *models.Results) {
	b.results = results
	b.data = nil
	b.flags.Reset()
	b.markStart = nil
	b.markEnd = nil
	b.active = true
}

// State returns the shared bookkeeping; it makes any type embedding Base
// satisfy that part of the Signature contract.
func (b *Base) State() *Base { return b }

// Flags exposes the signature's flag timeline.
func (b *Base) Flags() *Flags { return &b.flags }

// IsActive reports whether the dispatcher may route calls here.
func (b *Base) IsActive() bool { return b.active }

// Deactivate removes the signature from call dispatch.
func (b *Base) Deactivate() { b.active = false }

// Activate re-enables call dispatch.
func (b *Base) Activate() { b.active = true }

// OnProcess is a no-op default hook.
func (b *Base) OnProcess(pid int) {}

// OnThread is a no-op default hook.
func (b *Base) OnThread(pid, tid int) {}

// setCurrent records the position of the call about to be dispatched.
func (b *Base) setCurrent(pid, tid, cid int) {
	b.pid, b.tid, b.cid = pid, tid, cid
}

// MarkStart snapshots the current call position as the match start.
// Repeated calls overwrite the snapshot.
func (b *Base) MarkStart() {
	b.markStart = &models.Marker{PID: b.pid, TID: b.tid, CID: b.cid}
}

// MarkEnd snapshots the current call position as the match end.
func (b *Base) MarkEnd() {
	b.markEnd = &models.Marker{PID: b.pid, TID: b.tid, CID: b.cid}
}

func (b *Base) marker() *models.MarkerPair {
	if b.markStart == nil {
		return nil
	}
	return &models.MarkerPair{Start: *b.markStart, End: b.markEnd}
}

// AddMatch appends match evidence. A List or string-slice value expands
// into one sign per element.
func (b *Base) AddMatch(process *models.ProcessSummary, signType string, value any) {
	var signs []models.Sign
	switch vals := value.(type) {
	case []string:
		for _, v := range vals {
			signs = append(signs, models.Sign{Type: signType, Value: v})
		}
	case models.List:
		for _, v := range vals {
			signs = append(signs, models.Sign{Type: signType, Value: v})
		}
	default:
		signs = append(signs, models.Sign{Type: signType, Value: value})
	}

	var summary *models.MatchProcess
	if process != nil {
		summary = &models.MatchProcess{
			ProcessName: process.ProcessName,
			ProcessID:   process.ProcessIdentifier,
		}
	}
	b.data = append(b.data, models.MatchRecord{Process: summary, Signs: signs})
}

// HasMatches reports whether any evidence has been recorded.
func (b *Base) HasMatches() bool { return len(b.data) > 0 }

// Results returns the aggregate analysis structure.
func (b *Base) Results() *models.Results { return b.results }

// AsResult serializes the signature for downstream reporting.
func (b *Base) AsResult() *models.SignatureResult {
	return &models.SignatureResult{
		Name:        b.Name,
		Description: b.Description,
		Severity:    b.Severity,
		References:  b.References,
		Data:        b.data,
		Marker:      b.marker(),
		Alert:       b.Alert,
		Families:    b.Families,
	}
}

// checkValue tests a pattern against a subject: literal equality, or a
// case-insensitive regex anchored at the start. List subjects are scanned
// in order and the first satisfying element wins.
func (b *Base) checkValue(pattern string, subject any, regex bool) (string, bool) {
	var matcher func(string) bool
	if regex {
		exp, err := regexp.Compile("(?i)^(?:" + pattern + ")")
		if err != nil {
			logger.Debugf("Signature %s: bad pattern %q: %v", b.Name, pattern, err)
			return "", false
		}
		matcher = exp.MatchString
	} else {
		matcher = func(s string) bool { return s == pattern }
	}

	switch subj := subject.(type) {
	case string:
		if matcher(subj) {
			return subj, true
		}
	case []string:
		for _, item := range subj {
			if matcher(item) {
				return item, true
			}
		}
	case models.List:
		for _, item := range subj {
			if s, ok := item.(string); ok && matcher(s) {
				return s, true
			}
		}
	}
	return "", false
}
