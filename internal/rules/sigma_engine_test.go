package rules

import (
	"os"
	"path/filepath"
	"testing"

	"tracesig/pkg/models"
)

const passwdRule = `title: Credential File Open
id: test-passwd-open
status: test
author: tester
level: high
logsource:
    product: linux
detection:
    selection:
        Api: open
        path: /etc/passwd
    condition: selection
`

const windowsRule = `title: Windows Only
id: test-windows
level: low
logsource:
    product: windows
detection:
    selection:
        Api: open
    condition: selection
`

func writeRule(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
		t.Fatalf("failed to write rule: %v", err)
	}
}

func TestNewSigmaEngineLoadStats(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "passwd.yml", passwdRule)
	writeRule(t, dir, "windows.yml", windowsRule)
	writeRule(t, dir, "broken.yml", "detection: [not: valid")
	writeRule(t, dir, "notes.txt", "ignored")

	engine, stats, err := NewSigmaEngine(dir)
	if err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}
	if stats.TotalFiles != 3 {
		t.Fatalf("expected 3 yaml files, got %d", stats.TotalFiles)
	}
	if stats.Loaded != 1 {
		t.Fatalf("expected 1 loaded rule, got %d", stats.Loaded)
	}
	if stats.SkippedDatasource != 1 {
		t.Fatalf("expected 1 datasource skip, got %d", stats.SkippedDatasource)
	}
	if stats.SkippedInvalid != 1 {
		t.Fatalf("expected 1 invalid skip, got %d", stats.SkippedInvalid)
	}
	if sigs := engine.Signatures(); len(sigs) != 1 {
		t.Fatalf("expected 1 signature adapter, got %d", len(sigs))
	}
}

func TestSigmaSignatureMatchesCall(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "passwd.yml", passwdRule)

	engine, _, err := NewSigmaEngine(dir)
	if err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}
	sigs := engine.Signatures()
	if len(sigs) != 1 {
		t.Fatalf("expected 1 signature, got %d", len(sigs))
	}
	sig := sigs[0]
	state := sig.State()
	if state.Name != "test-passwd-open" {
		t.Fatalf("unexpected signature name: %q", state.Name)
	}
	if state.Severity != 4 || !state.Alert {
		t.Fatalf("high level must map to alerting severity 4, got %d/%v", state.Severity, state.Alert)
	}

	state.Init(&models.Results{})

	miss := &models.SyscallEvent{API: "read", Arguments: models.Args{"path": "/etc/passwd"}}
	if !sig.OnCall(miss, 200, 200) {
		t.Fatalf("adapter must stay active after a miss")
	}
	if sig.OnComplete() {
		t.Fatalf("no match expected yet")
	}

	hit := &models.SyscallEvent{API: "open", Category: models.CategoryFile, Arguments: models.Args{"path": "/etc/passwd"}}
	if !sig.OnCall(hit, 200, 200) {
		t.Fatalf("adapter must stay active after a hit")
	}
	if !sig.OnComplete() {
		t.Fatalf("expected the rule to match the open call")
	}
	result := state.AsResult()
	if len(result.Data) != 1 || result.Data[0].Signs[0].Value != "open" {
		t.Fatalf("unexpected evidence: %+v", result.Data)
	}
}

func TestSeverityFromLevel(t *testing.T) {
	cases := map[string]int{
		"informational": 1,
		"low":           2,
		"medium":        3,
		"":              3,
		"high":          4,
		"critical":      5,
		"bogus":         3,
	}
	for level, want := range cases {
		if got := severityFromLevel(level); got != want {
			t.Fatalf("level %q: expected %d, got %d", level, want, got)
		}
	}
}
