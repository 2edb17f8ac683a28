package signatures

import (
	"strings"

	"tracesig/pkg/models"
)

// Builtin returns a fresh instance of every built-in signature.
// Instances carry per-run state and must not be shared across runs.
func Builtin() []Signature {
	return []Signature{
		NewNetworkConnector(),
		NewSensitiveFileAccess(),
		NewDropsAndExecutes(),
	}
}

// NetworkConnector records every outbound connect the sample makes.
type NetworkConnector struct {
	Base
}

func NewNetworkConnector() *NetworkConnector {
	return &NetworkConnector{Base: Base{
		Name:           "network_connector",
		Description:    "Initiates outbound network connections",
		Severity:       2,
		Categories:     []string{"network"},
		Authors:        []string{"tracesig"},
		Enabled:        true,
		FilterAPINames: []string{"connect"},
	}}
}

func (s *NetworkConnector) Quickout() bool { return false }

func (s *NetworkConnector) OnCall(call *models.SyscallEvent, pid, tid int) bool {
	proc := firstProcessByPID(s.Results(), pid)
	s.MarkStart()
	s.AddMatch(proc, "call", call.Argument("addr"))
	return true
}

func (s *NetworkConnector) OnSignature(matched Signature) {}

func (s *NetworkConnector) OnComplete() bool { return s.HasMatches() }

// SensitiveFileAccess flags reads of credential files.
type SensitiveFileAccess struct {
	Base
}

var sensitivePaths = []string{"/etc/passwd", "/etc/shadow"}

func NewSensitiveFileAccess() *SensitiveFileAccess {
	return &SensitiveFileAccess{Base: Base{
		Name:             "sensitive_file_access",
		Description:      "Opens system credential files",
		Severity:         3,
		Categories:       []string{"file"},
		Authors:          []string{"tracesig"},
		Enabled:          true,
		Alert:            true,
		FilterAPINames:   []string{"open"},
		FilterCategories: []string{"file"},
	}}
}

func (s *SensitiveFileAccess) Quickout() bool { return false }

func (s *SensitiveFileAccess) OnCall(call *models.SyscallEvent, pid, tid int) bool {
	path := call.ArgumentString("path")
	for _, target := range sensitivePaths {
		if path == target {
			s.MarkStart()
			s.Flags().Set("sensitive_open", pid, tid, call.Time)
			s.AddMatch(firstProcessByPID(s.Results(), pid), "file", path)
			s.MarkEnd()
		}
	}
	return true
}

func (s *SensitiveFileAccess) OnSignature(matched Signature) {}

func (s *SensitiveFileAccess) OnComplete() bool { return s.HasMatches() }

// DropsAndExecutes flags a process that writes a file under a writable
// directory and later executes from the same directory.
type DropsAndExecutes struct {
	Base
}

var droppableDirs = []string{"/tmp/", "/var/tmp/", "/dev/shm/"}

func NewDropsAndExecutes() *DropsAndExecutes {
	return &DropsAndExecutes{Base: Base{
		Name:        "drops_and_executes",
		Description: "Drops a file to a writable directory and executes it",
		Severity:    4,
		Categories:  []string{"file", "process"},
		Authors:     []string{"tracesig"},
		Enabled:     true,
		Alert:       true,
	}}
}

func (s *DropsAndExecutes) Quickout() bool { return false }

func (s *DropsAndExecutes) OnCall(call *models.SyscallEvent, pid, tid int) bool {
	switch call.API {
	case "open", "creat":
		path := call.ArgumentString("path")
		if inDroppableDir(path) {
			s.Flags().Set("dropped:"+path, pid, tid, call.Time)
		}
	case "execve":
		// execve stays positional: p0 is the image path.
		path := call.ArgumentString("p0")
		if !inDroppableDir(path) {
			break
		}
		// Any prior drop of the executed path, from any process,
		// counts. The flag store keeps the earlier pid for evidence.
		if flags := s.Flags().Find(FlagQuery{Name: "dropped:" + path}); len(flags) > 0 {
			s.MarkStart()
			s.AddMatch(firstProcessByPID(s.Results(), pid), "file", path)
			s.MarkEnd()
		}
	}
	return true
}

func inDroppableDir(path string) bool {
	for _, dir := range droppableDirs {
		if strings.HasPrefix(path, dir) {
			return true
		}
	}
	return false
}

func (s *DropsAndExecutes) OnSignature(matched Signature) {}

func (s *DropsAndExecutes) OnComplete() bool { return s.HasMatches() }

// firstProcessByPID resolves the process summary for evidence records.
func firstProcessByPID(results *models.Results, pid int) *models.ProcessSummary {
	if results == nil {
		return nil
	}
	for _, proc := range results.Behavior.Processes {
		if proc.ProcessIdentifier == pid {
			return proc
		}
	}
	return nil
}
