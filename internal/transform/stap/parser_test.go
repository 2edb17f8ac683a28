package stap

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"tracesig/pkg/models"
)

func traceLine(micros int, name, ip string, pid, api, args, ret, status string) string {
	return fmt.Sprintf("Thu May  7 14:58:43 2015.%06d %s@%s[%s] %s(%s) = %s (%s)",
		micros, name, ip, pid, api, args, ret, status)
}

func parseOne(t *testing.T, line string) *models.SyscallEvent {
	t.Helper()
	parser, err := NewParser(strings.NewReader(line + "\n"))
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}
	ev, ok := parser.Events().Next()
	if !ok {
		t.Fatalf("expected one event from %q", line)
	}
	return ev
}

func TestParseLineFields(t *testing.T) {
	ev := parseOne(t, `Thu May  7 14:58:43 2015.390178 python@7f798cb95240[2114] open("/etc/passwd", O_RDONLY) = 6 (0)`)

	want := time.Date(2015, time.May, 7, 14, 58, 43, 390178000, time.UTC)
	if !ev.Time.Equal(want) {
		t.Fatalf("unexpected timestamp: %v", ev.Time)
	}
	if ev.ProcessName != "python" {
		t.Fatalf("unexpected process name: %q", ev.ProcessName)
	}
	if ev.InstructionPointer != "7f798cb95240" {
		t.Fatalf("unexpected instruction pointer: %q", ev.InstructionPointer)
	}
	if ev.PID != 2114 {
		t.Fatalf("unexpected pid: %d", ev.PID)
	}
	if ev.API != "open" {
		t.Fatalf("unexpected api: %q", ev.API)
	}
	if ev.ReturnValue != "6" || ev.Status != "0" {
		t.Fatalf("unexpected retval/status: %q %q", ev.ReturnValue, ev.Status)
	}
	if ev.Category != models.CategoryFile {
		t.Fatalf("unexpected category: %q", ev.Category)
	}
	if ev.ArgumentString("path") != "/etc/passwd" {
		t.Fatalf("unexpected path argument: %v", ev.Argument("path"))
	}
	if ev.ArgumentString("mode") != "O_RDONLY" {
		t.Fatalf("unexpected mode argument: %v", ev.Argument("mode"))
	}
}

func TestParseLineNonNumericPID(t *testing.T) {
	ev := parseOne(t, traceLine(1, "kworker", "ffffffff", "unknown", "open", `"/tmp/x", O_RDONLY`, "3", "0"))
	if ev.PID != -1 {
		t.Fatalf("expected sentinel pid, got %d", ev.PID)
	}
}

func TestParseLineUnknownAPIKeepsPositionalArgs(t *testing.T) {
	ev := parseOne(t, traceLine(2, "python", "7f00", "10", "prctl", "PR_SET_NAME, 0x1234", "0", "0"))
	if ev.Category != models.CategoryDefault {
		t.Fatalf("unexpected category: %q", ev.Category)
	}
	if ev.ArgumentString("p0") != "PR_SET_NAME" {
		t.Fatalf("unexpected p0: %v", ev.Argument("p0"))
	}
}

func TestParseLineSockoptRenaming(t *testing.T) {
	ev := parseOne(t, traceLine(3, "python", "7f00", "10", "getsockopt", "5, SOL_SOCKET, SO_ERROR, 0x7ffc", "0", "0"))
	if ev.Category != models.CategoryNetwork {
		t.Fatalf("unexpected category: %q", ev.Category)
	}
	if ev.ArgumentString("optval") != "0x7ffc" {
		t.Fatalf("unexpected optval: %v", ev.Argument("optval"))
	}
	if _, ok := ev.Arguments["optlen"]; ok {
		t.Fatalf("optlen must not be surfaced: %+v", ev.Arguments)
	}
	if _, ok := ev.Arguments["p3"]; ok {
		t.Fatalf("p3 should be renamed: %+v", ev.Arguments)
	}
}

func TestParserSkipsShortLines(t *testing.T) {
	src := "garbage\n" + traceLine(4, "python", "7f00", "10", "close", "3", "0", "0") + "\n\n"
	parser, err := NewParser(strings.NewReader(src))
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}
	count := 0
	parser.Each(func(ev *models.SyscallEvent) bool {
		count++
		return true
	})
	if count != 1 {
		t.Fatalf("expected 1 event, got %d", count)
	}
}

func TestParserReplaysAreIndependent(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 5; i++ {
		sb.WriteString(traceLine(i, "python", "7f00", "10", "close", "3", "0", "0"))
		sb.WriteByte('\n')
	}
	parser, err := NewParser(strings.NewReader(sb.String()))
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}

	first := parser.Events()
	if _, ok := first.Next(); !ok {
		t.Fatalf("expected an event from the first stream")
	}

	// A second full replay must not disturb the first cursor.
	second := 0
	parser.Each(func(ev *models.SyscallEvent) bool {
		second++
		return true
	})
	if second != 5 {
		t.Fatalf("expected 5 events on replay, got %d", second)
	}

	remaining := 0
	for _, ok := first.Next(); ok; _, ok = first.Next() {
		remaining++
	}
	if remaining != 4 {
		t.Fatalf("expected 4 events left on the first stream, got %d", remaining)
	}
}

func TestFilteredStreamSelectsPIDAndCategory(t *testing.T) {
	src := strings.Join([]string{
		traceLine(0, "python", "7f00", "10", "open", `"/tmp/a", O_RDONLY`, "3", "0"),
		traceLine(1, "sh", "7f01", "11", "open", `"/tmp/b", O_RDONLY`, "4", "0"),
		traceLine(2, "python", "7f00", "10", "socket", "AF_INET, SOCK_STREAM, 0", "5", "0"),
	}, "\n")
	parser, err := NewParser(strings.NewReader(src))
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}

	var apis []string
	NewFilteredStream(parser, Filter{PID: 10}).Each(func(ev *models.SyscallEvent) bool {
		apis = append(apis, ev.API)
		return true
	})
	if len(apis) != 2 || apis[0] != "open" || apis[1] != "socket" {
		t.Fatalf("unexpected pid-filtered calls: %v", apis)
	}

	apis = nil
	NewFilteredStream(parser, Filter{PID: 10, Category: models.CategoryNetwork}).Each(func(ev *models.SyscallEvent) bool {
		apis = append(apis, ev.API)
		return true
	})
	if len(apis) != 1 || apis[0] != "socket" {
		t.Fatalf("unexpected category-filtered calls: %v", apis)
	}
}
