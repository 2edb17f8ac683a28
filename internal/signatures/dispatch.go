package signatures

import (
	"tracesig/internal/logger"
	"tracesig/pkg/models"
)

// Dispatcher drives a set of signatures over reconstructed behavior
// results. Signatures are initialized once per dispatcher and consumed
// by a single Run.
type Dispatcher struct {
	results *models.Results
	sigs    []Signature
}

// NewDispatcher prepares the signature set against the given results.
// Disabled signatures and signatures that quick-out are dropped here,
// before any call is dispatched.
func NewDispatcher(results *models.Results, sigs []Signature) *Dispatcher {
	d := &Dispatcher{results: results}
	for _, sig := range sigs {
		state := sig.State()
		if !state.Enabled {
			continue
		}
		state.Init(results)
		if sig.Quickout() {
			logger.Debugf("signature %s quick-out", state.Name)
			continue
		}
		d.sigs = append(d.sigs, sig)
	}
	return d
}

// eligible reports whether the signature wants the given call. Empty
// filter slices accept everything.
func eligible(state *Base, proc *models.ProcessSummary, call *models.SyscallEvent) bool {
	if len(state.FilterProcessNames) > 0 && !contains(state.FilterProcessNames, proc.ProcessName) {
		return false
	}
	if len(state.FilterAPINames) > 0 && !contains(state.FilterAPINames, call.API) {
		return false
	}
	if len(state.FilterCategories) > 0 && !contains(state.FilterCategories, call.Category) {
		return false
	}
	return true
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}

// Run replays every process call stream through the active signatures,
// then finalizes. Matched signature results are appended to the shared
// results and announced to the remaining signatures.
func (d *Dispatcher) Run() []*models.SignatureResult {
	for _, proc := range d.results.Behavior.Processes {
		d.runProcess(proc)
	}

	var matched []*models.SignatureResult
	for _, sig := range d.sigs {
		state := sig.State()
		if !state.IsActive() {
			continue
		}
		if !sig.OnComplete() {
			continue
		}
		result := state.AsResult()
		matched = append(matched, result)
		d.results.Signatures = append(d.results.Signatures, result)
		logger.Infof("signature matched: %s (severity %d)", state.Name, state.Severity)
		for _, other := range d.sigs {
			if other != sig && other.State().IsActive() {
				other.OnSignature(sig)
			}
		}
	}
	return matched
}

func (d *Dispatcher) runProcess(proc *models.ProcessSummary) {
	pid := proc.ProcessIdentifier
	for _, sig := range d.sigs {
		if sig.State().IsActive() {
			sig.OnProcess(pid)
			for _, tid := range proc.Threads {
				sig.OnThread(pid, tid)
			}
		}
	}
	if proc.Calls == nil {
		return
	}

	cid := -1
	proc.Calls.Each(func(call *models.SyscallEvent) bool {
		cid++
		for _, sig := range d.sigs {
			state := sig.State()
			if !state.IsActive() || !eligible(state, proc, call) {
				continue
			}
			// Threads are not distinguished in the trace, so the
			// thread id mirrors the pid.
			state.setCurrent(pid, pid, cid)
			if !sig.OnCall(call, pid, pid) {
				logger.Debugf("signature %s withdrew during call dispatch", state.Name)
				state.Deactivate()
			}
		}
		return true
	})
}
