package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tracesig/pkg/models"
)

func traceLine(micros int, name string, pid int, api, args, ret, status string) string {
	return fmt.Sprintf("Thu May  7 14:58:43 2015.%06d %s@7f798cb95240[%d] %s(%s) = %s (%s)",
		micros, name, pid, api, args, ret, status)
}

func writeTrace(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.stap")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("failed to write trace: %v", err)
	}
	return path
}

func TestAnalyzeTaskEndToEnd(t *testing.T) {
	trace := writeTrace(t,
		traceLine(0, "sh", 100, "clone", "", "200", "0"),
		traceLine(1, "sh", 200, "execve", `"/usr/bin/python", ["python", "foo.py"], [/*12 vars*/]`, "0", "0"),
		traceLine(2, "python", 200, "open", `"/etc/passwd", O_RDONLY`, "3", "0"),
		traceLine(3, "python", 200, "read", `3, "root:x", 4096`, "6", "0"),
		traceLine(4, "python", 200, "connect", "4, 10.0.0.1, 16", "0", "0"),
	)

	analyzer := NewAnalyzer(nil, true)
	report, err := analyzer.AnalyzeTask(&models.Task{TaskID: "t-1", TracePath: trace})
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	if report.TaskID != "t-1" {
		t.Fatalf("unexpected task id: %q", report.TaskID)
	}
	if len(report.Processes) != 1 {
		t.Fatalf("expected 1 process, got %d", len(report.Processes))
	}
	proc := report.Processes[0]
	if proc.PID != 200 || proc.CommandLine != "python foo.py" {
		t.Fatalf("unexpected process record: %+v", proc)
	}

	names := make(map[string]bool)
	for _, sig := range report.Signatures {
		names[sig.Name] = true
	}
	if !names["sensitive_file_access"] {
		t.Fatalf("expected sensitive_file_access to match, got %v", names)
	}
	if !names["network_connector"] {
		t.Fatalf("expected network_connector to match, got %v", names)
	}
}

func TestAnalyzeTaskRejectsUnknownTraceFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.dmp")
	if err := os.WriteFile(path, []byte("not a trace"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	analyzer := NewAnalyzer(nil, true)
	_, err := analyzer.AnalyzeTask(&models.Task{TaskID: "t-2", TracePath: path})
	if !errors.Is(err, ErrNoTrace) {
		t.Fatalf("expected ErrNoTrace, got %v", err)
	}
}

func TestAnalyzeTaskMissingFile(t *testing.T) {
	analyzer := NewAnalyzer(nil, false)
	_, err := analyzer.AnalyzeTask(&models.Task{TaskID: "t-3", TracePath: filepath.Join(t.TempDir(), "missing.stap")})
	if err == nil {
		t.Fatalf("expected an error for a missing trace file")
	}
}
