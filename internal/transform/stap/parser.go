package stap

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"tracesig/internal/logger"
	"tracesig/pkg/models"
)

// The datetime plus microsecond prefix of every trace line occupies a
// fixed span, e.g. "Thu May  7 14:58:43 2015.390178".
const stampLen = 31

// tokenDelims partition the post-timestamp remainder into process name,
// instruction pointer, pid, API name, argument blob, return value and
// status code, in order.
var tokenDelims = []string{"@", "[", "]", "(", ")", "= ", " (", ")"}

// Parser produces typed syscall events from a captured trace. The source
// is read once up front; every Events call replays the full trace from
// the beginning over its own cursor, so any number of traversals can be
// interleaved without interfering.
type Parser struct {
	data []byte
}

// NewParser slurps the trace source.
func NewParser(r io.Reader) (*Parser, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return &Parser{data: data}, nil
}

// Open reads a trace file into a parser.
func Open(path string) (*Parser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewParser(f)
}

// Events starts a fresh replay of the entire trace.
func (p *Parser) Events() *EventStream {
	s := bufio.NewScanner(bytes.NewReader(p.data))
	s.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &EventStream{s: s}
}

// Each replays the trace, invoking fn per event until it returns false.
func (p *Parser) Each(fn func(*models.SyscallEvent) bool) {
	es := p.Events()
	for ev, ok := es.Next(); ok; ev, ok = es.Next() {
		if !fn(ev) {
			return
		}
	}
}

// EventStream is a forward-only cursor over one replay of the trace.
type EventStream struct {
	s *bufio.Scanner
}

// Next returns the next parseable event, or false at end of trace.
func (es *EventStream) Next() (*models.SyscallEvent, bool) {
	for es.s.Scan() {
		if ev := parseLine(es.s.Text()); ev != nil {
			return ev, true
		}
	}
	return nil, false
}

// parseLine decodes one raw trace line. The tokenizer is best-effort: an
// ill-formed line decodes to whatever the fixed grammar yields rather
// than failing. Only lines too short to carry a timestamp are dropped.
func parseLine(line string) *models.SyscallEvent {
	if len(line) < stampLen+2 {
		if strings.TrimSpace(line) != "" {
			logger.Debugf("Dropping short trace line: %q", line)
		}
		return nil
	}

	ts := parseStamp(line[:stampLen])

	parts := make([]string, 0, len(tokenDelims))
	rest := line[stampLen+1:]
	for _, delim := range tokenDelims {
		var part string
		part, rest, _ = strings.Cut(strings.TrimSpace(rest), delim)
		parts = append(parts, part)
	}

	pname, ip, pidStr, api, argBlob, retval, status := parts[0], parts[1], parts[2], parts[3], parts[4], parts[6], parts[7]

	pid := -1
	if isDigits(pidStr) {
		if n, err := strconv.Atoi(pidStr); err == nil {
			pid = n
		}
	}

	ev := &models.SyscallEvent{
		Time:               ts,
		ProcessName:        pname,
		PID:                pid,
		InstructionPointer: ip,
		API:                api,
		Arguments:          ParseArgs(argBlob),
		ReturnValue:        retval,
		Status:             status,
		Category:           models.CategoryDefault,
		Raw:                line,
	}
	applyDispatch(ev)
	return ev
}

// parseStamp decodes the fixed-width timestamp field: an ANSIC datetime,
// a dot, and an integer microsecond offset. A malformed stamp yields the
// zero time.
func parseStamp(stamp string) time.Time {
	datePart, microPart, _ := strings.Cut(stamp, ".")
	ts, err := time.Parse(time.ANSIC, datePart)
	if err != nil {
		logger.Debugf("Unparseable trace timestamp %q: %v", datePart, err)
		return time.Time{}
	}
	if micros, err := strconv.Atoi(strings.TrimSpace(microPart)); err == nil {
		ts = ts.Add(time.Duration(micros) * time.Microsecond)
	}
	return ts
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
