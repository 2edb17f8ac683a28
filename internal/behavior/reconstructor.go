package behavior

import (
	"path"
	"sort"
	"strconv"
	"strings"

	"tracesig/internal/transform/stap"
	"tracesig/pkg/models"
)

// Fact categories emitted by the per-API handlers.
const (
	FactFilesOpened  = "files_opened"
	FactFilesWritten = "files_written"
	FactFilesRead    = "files_read"
	FactFileExists   = "file_exists"
	FactConnectsIP   = "connects_ip"
	FactSocket       = "socket"
	FactProcess      = "process"
)

// fdState tracks open descriptors for one process. A descriptor is either
// a file or a socket at any instant; close forgets it from both maps.
type fdState struct {
	files   map[string]string
	sockets map[string]models.Args
}

func newFDState() *fdState {
	return &fdState{
		files:   make(map[string]string),
		sockets: make(map[string]models.Args),
	}
}

// handlerFunc derives zero or more facts from one call. A miss on an
// untracked descriptor is "not tracked", never an error.
type handlerFunc func(st *fdState, ev *models.SyscallEvent) []models.Fact

// apiHandlers is built once at startup; APIs without an entry are no-ops.
var apiHandlers = buildHandlers()

func buildHandlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"open": func(st *fdState, ev *models.SyscallEvent) []models.Fact {
			p := ev.ArgumentString("path")
			st.files[ev.ReturnValue] = p
			return single(ev.PID, FactFilesOpened, p)
		},
		"write": func(st *fdState, ev *models.SyscallEvent) []models.Fact {
			if p, ok := st.files[ev.ArgumentString("fd")]; ok {
				return single(ev.PID, FactFilesWritten, p)
			}
			return nil
		},
		"read": func(st *fdState, ev *models.SyscallEvent) []models.Fact {
			if p, ok := st.files[ev.ArgumentString("fd")]; ok {
				return single(ev.PID, FactFilesRead, p)
			}
			return nil
		},
		"close": func(st *fdState, ev *models.SyscallEvent) []models.Fact {
			fd := ev.ArgumentString("fd")
			delete(st.files, fd)
			delete(st.sockets, fd)
			return nil
		},
		"stat": func(st *fdState, ev *models.SyscallEvent) []models.Fact {
			return single(ev.PID, FactFileExists, ev.ArgumentString("path"))
		},
		"connect": func(st *fdState, ev *models.SyscallEvent) []models.Fact {
			return single(ev.PID, FactConnectsIP, formatValue(ev.Argument("addr")))
		},
		"socket": func(st *fdState, ev *models.SyscallEvent) []models.Fact {
			st.sockets[ev.ReturnValue] = ev.Arguments
			return single(ev.PID, FactSocket, ev.ArgumentString("type"))
		},
	}
}

func single(pid int, category string, value any) []models.Fact {
	return []models.Fact{{PID: pid, Category: category, Value: value}}
}

func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return stap.FormatArg(v)
}

// Reconstructor rebuilds the process tree and generic behavioral facts
// from a raw trace. Processes whose parentage was never observed via
// clone/fork (the outer harness) are skipped entirely.
type Reconstructor struct {
	forkmap map[int]int
	records []*models.ProcessRecord
	byPID   map[int]*models.ProcessRecord
	states  map[int]*fdState
	matched bool
}

// NewReconstructor creates an empty reconstructor.
func NewReconstructor() *Reconstructor {
	return &Reconstructor{
		forkmap: make(map[int]int),
		byPID:   make(map[int]*models.ProcessRecord),
		states:  make(map[int]*fdState),
	}
}

// HandlesPath reports whether the file looks like a captured trace and
// arms the reconstructor when it does.
func (r *Reconstructor) HandlesPath(tracePath string) bool {
	if strings.HasSuffix(tracePath, ".stap") {
		r.matched = true
		return true
	}
	return false
}

// ParseTrace drives one full replay of the trace through the
// reconstructor and returns the derived facts in observation order.
func (r *Reconstructor) ParseTrace(parser *stap.Parser) []models.Fact {
	var facts []models.Fact
	parser.Each(func(ev *models.SyscallEvent) bool {
		facts = append(facts, r.Process(ev, parser)...)
		return true
	})
	return facts
}

// Process consumes one event: fork bookkeeping, process materialization,
// fact derivation and the execve identity update.
func (r *Reconstructor) Process(ev *models.SyscallEvent, parser *stap.Parser) []models.Fact {
	r.preHook(ev)

	// Events for a pid with unknown parentage are not reconstructed.
	if _, ok := r.forkmap[ev.PID]; !ok {
		return nil
	}

	if _, ok := r.byPID[ev.PID]; !ok {
		rec := &models.ProcessRecord{
			PID:       ev.PID,
			PPID:      r.parentOf(ev.PID),
			FirstSeen: ev.Time,
			Calls:     stap.NewFilteredStream(parser, stap.Filter{PID: ev.PID}),
		}
		rec.ProcessName = ev.ProcessName
		r.records = append(r.records, rec)
		r.byPID[ev.PID] = rec
		r.states[ev.PID] = newFDState()
	}

	var facts []models.Fact
	if handler, ok := apiHandlers[ev.API]; ok {
		facts = handler(r.states[ev.PID], ev)
	}

	if rec := r.postHook(ev); rec != nil {
		facts = append(facts, models.Fact{PID: ev.PID, Category: FactProcess, Value: rec})
	}
	return facts
}

// preHook records child pid lineage before the event is otherwise
// processed.
func (r *Reconstructor) preHook(ev *models.SyscallEvent) {
	if ev.API != "clone" && ev.API != "fork" {
		return
	}
	if child, err := strconv.Atoi(ev.ReturnValue); err == nil {
		r.forkmap[child] = ev.PID
	}
}

// postHook applies the first successful execve to a process whose command
// line is still unset, returning the updated record once.
func (r *Reconstructor) postHook(ev *models.SyscallEvent) *models.ProcessRecord {
	if ev.API != "execve" || !ev.Succeeded() {
		return nil
	}
	rec := r.byPID[ev.PID]
	if rec == nil || rec.CommandLine != "" {
		return nil
	}
	rec.ProcessName = path.Base(ev.ArgumentString("p0"))
	rec.CommandLine = joinArgv(ev.Argument("p1"))
	return rec
}

func (r *Reconstructor) parentOf(pid int) int {
	if ppid, ok := r.forkmap[pid]; ok {
		return ppid
	}
	return -1
}

// Processes returns the materialized records sorted by first-seen time.
// ok is false when no recognizable trace was ever handled, which is
// distinct from a successful reconstruction of an empty process tree.
func (r *Reconstructor) Processes() (records []*models.ProcessRecord, ok bool) {
	if !r.matched {
		return nil, false
	}
	sort.SliceStable(r.records, func(i, j int) bool {
		return r.records[i].FirstSeen.Before(r.records[j].FirstSeen)
	})
	return r.records, true
}

// joinArgv renders a decoded argv list as a space-joined command line.
func joinArgv(v any) string {
	list, ok := v.(models.List)
	if !ok {
		return formatValue(v)
	}
	parts := make([]string, 0, len(list))
	for _, el := range list {
		parts = append(parts, formatValue(el))
	}
	return strings.Join(parts, " ")
}
