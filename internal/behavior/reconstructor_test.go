package behavior

import (
	"fmt"
	"strings"
	"testing"

	"tracesig/internal/transform/stap"
	"tracesig/pkg/models"
)

func traceLine(micros int, name string, pid int, api, args, ret, status string) string {
	return fmt.Sprintf("Thu May  7 14:58:43 2015.%06d %s@7f798cb95240[%d] %s(%s) = %s (%s)",
		micros, name, pid, api, args, ret, status)
}

func runTrace(t *testing.T, lines ...string) (*Reconstructor, []models.Fact) {
	t.Helper()
	parser, err := stap.NewParser(strings.NewReader(strings.Join(lines, "\n")))
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}
	recon := NewReconstructor()
	if !recon.HandlesPath("trace.stap") {
		t.Fatalf("expected .stap trace to be recognized")
	}
	return recon, recon.ParseTrace(parser)
}

func factValues(facts []models.Fact, category string) []string {
	var out []string
	for _, f := range facts {
		if f.Category == category {
			if s, ok := f.Value.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

func TestReconstructorSkipsUnparentedProcesses(t *testing.T) {
	recon, facts := runTrace(t,
		traceLine(0, "sh", 100, "open", `"/tmp/loose", O_RDONLY`, "3", "0"),
	)
	records, ok := recon.Processes()
	if !ok {
		t.Fatalf("expected reconstruction to report a handled trace")
	}
	if len(records) != 0 {
		t.Fatalf("expected no records for unparented pid, got %d", len(records))
	}
	if len(facts) != 0 {
		t.Fatalf("expected no facts for unparented pid, got %+v", facts)
	}
}

func TestReconstructorForkLineage(t *testing.T) {
	recon, _ := runTrace(t,
		traceLine(0, "sh", 100, "clone", "", "200", "0"),
		traceLine(1, "sh", 200, "clone", "", "300", "0"),
		traceLine(2, "sh", 300, "open", `"/tmp/a", O_RDONLY`, "3", "0"),
	)
	records, ok := recon.Processes()
	if !ok {
		t.Fatalf("expected reconstruction to report a handled trace")
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].PID != 200 || records[0].PPID != 100 {
		t.Fatalf("unexpected first record lineage: pid=%d ppid=%d", records[0].PID, records[0].PPID)
	}
	if records[1].PID != 300 || records[1].PPID != 200 {
		t.Fatalf("unexpected second record lineage: pid=%d ppid=%d", records[1].PID, records[1].PPID)
	}
}

func TestReconstructorExecveIdentityAppliedOnce(t *testing.T) {
	recon, _ := runTrace(t,
		traceLine(0, "sh", 100, "clone", "", "200", "0"),
		traceLine(1, "sh", 200, "execve", `"/usr/bin/python", ["python", "foo.py"], [/*12 vars*/]`, "0", "0"),
		traceLine(2, "python", 200, "execve", `"/bin/ls", ["ls"], [/*12 vars*/]`, "0", "0"),
	)
	records, _ := recon.Processes()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.ProcessName != "python" {
		t.Fatalf("unexpected process name: %q", rec.ProcessName)
	}
	if rec.CommandLine != "python foo.py" {
		t.Fatalf("unexpected command line: %q", rec.CommandLine)
	}
}

func TestReconstructorFailedExecveIgnored(t *testing.T) {
	recon, _ := runTrace(t,
		traceLine(0, "sh", 100, "clone", "", "200", "0"),
		traceLine(1, "sh", 200, "execve", `"/missing", ["missing"], [/*0 vars*/]`, "-2", "-2"),
	)
	records, _ := recon.Processes()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].CommandLine != "" {
		t.Fatalf("failed execve must not set identity: %q", records[0].CommandLine)
	}
}

func TestReconstructorFileDescriptorTracking(t *testing.T) {
	_, facts := runTrace(t,
		traceLine(0, "sh", 100, "clone", "", "200", "0"),
		traceLine(1, "python", 200, "open", `"/tmp/dropped", O_WRONLY`, "3", "0"),
		traceLine(2, "python", 200, "write", `3, "payload", 7`, "7", "0"),
		traceLine(3, "python", 200, "close", "3", "0", "0"),
		traceLine(4, "python", 200, "write", `3, "late", 4`, "-9", "-9"),
		traceLine(5, "python", 200, "read", `7, "", 64`, "-9", "-9"),
	)
	if got := factValues(facts, FactFilesOpened); len(got) != 1 || got[0] != "/tmp/dropped" {
		t.Fatalf("unexpected opened files: %v", got)
	}
	if got := factValues(facts, FactFilesWritten); len(got) != 1 || got[0] != "/tmp/dropped" {
		t.Fatalf("unexpected written files: %v", got)
	}
	if got := factValues(facts, FactFilesRead); got != nil {
		t.Fatalf("untracked fd read must not emit facts: %v", got)
	}
}

func TestReconstructorNetworkFacts(t *testing.T) {
	_, facts := runTrace(t,
		traceLine(0, "sh", 100, "clone", "", "200", "0"),
		traceLine(1, "python", 200, "socket", "AF_INET, SOCK_STREAM, 0", "4", "0"),
		traceLine(2, "python", 200, "connect", "4, 192.168.1.50, 16", "0", "0"),
	)
	if got := factValues(facts, FactSocket); len(got) != 1 || got[0] != "SOCK_STREAM" {
		t.Fatalf("unexpected socket facts: %v", got)
	}
	if got := factValues(facts, FactConnectsIP); len(got) != 1 || got[0] != "192.168.1.50" {
		t.Fatalf("unexpected connect facts: %v", got)
	}
}

func TestReconstructorNoTrace(t *testing.T) {
	recon := NewReconstructor()
	if recon.HandlesPath("memory.dmp") {
		t.Fatalf("unexpected trace match for non-trace file")
	}
	records, ok := recon.Processes()
	if ok || records != nil {
		t.Fatalf("expected (nil, false) without a handled trace, got (%v, %v)", records, ok)
	}
}

func TestBuildResultsSummaryAndHosts(t *testing.T) {
	records := []*models.ProcessRecord{
		{PID: 200, ProcessName: "python"},
	}
	facts := []models.Fact{
		{PID: 200, Category: FactFilesOpened, Value: "/tmp/a"},
		{PID: 200, Category: FactFilesOpened, Value: "/tmp/a"},
		{PID: 200, Category: FactFilesOpened, Value: "/tmp/b"},
		{PID: 200, Category: FactConnectsIP, Value: "10.0.0.1"},
		{PID: 200, Category: FactConnectsIP, Value: "10.0.0.1"},
		{PID: 999, Category: FactFilesOpened, Value: "/ignored"},
		{PID: 200, Category: FactProcess, Value: records[0]},
	}

	results := BuildResults(records, facts)
	if len(results.Behavior.Processes) != 1 {
		t.Fatalf("expected 1 process summary, got %d", len(results.Behavior.Processes))
	}
	ps := results.Behavior.Processes[0]
	if ps.ProcessIdentifier != 200 || ps.ProcessName != "python" {
		t.Fatalf("unexpected summary identity: %+v", ps)
	}
	if len(ps.Threads) != 1 || ps.Threads[0] != 200 {
		t.Fatalf("unexpected threads: %v", ps.Threads)
	}
	opened := ps.Summary[FactFilesOpened]
	if len(opened) != 2 || opened[0] != "/tmp/a" || opened[1] != "/tmp/b" {
		t.Fatalf("unexpected deduped summary: %v", opened)
	}
	if len(results.Network.Hosts) != 1 || results.Network.Hosts[0] != "10.0.0.1" {
		t.Fatalf("unexpected hosts: %v", results.Network.Hosts)
	}
}
