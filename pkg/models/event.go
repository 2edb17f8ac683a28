package models

import "time"

// Event categories assigned by the trace dispatch table.
const (
	CategoryDefault = "default"
	CategoryFile    = "file"
	CategoryNetwork = "network"
)

// Args maps positional (p0, p1, ...) or renamed argument keys to decoded
// values. Values are string scalars, List, or Struct.
type Args map[string]any

// List is a decoded array argument.
type List []any

// Field is one named member of a decoded struct argument.
type Field struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Struct is a decoded struct argument with field order preserved.
type Struct []Field

// Get returns the value of a named struct field.
func (s Struct) Get(name string) (any, bool) {
	for _, f := range s {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// SyscallEvent is one parsed trace line.
type SyscallEvent struct {
	Time               time.Time `json:"time"`
	ProcessName        string    `json:"process_name"`
	PID                int       `json:"pid"`
	InstructionPointer string    `json:"instruction_pointer"`
	API                string    `json:"api"`
	Arguments          Args      `json:"arguments"`
	ReturnValue        string    `json:"return_value"`
	Status             string    `json:"status"`
	Category           string    `json:"category"`
	Raw                string    `json:"-"`
}

// Argument returns a decoded argument value, or nil if absent.
func (e *SyscallEvent) Argument(name string) any {
	if e == nil || e.Arguments == nil {
		return nil
	}
	return e.Arguments[name]
}

// ArgumentString returns an argument coerced to a string. Non-string
// values and missing arguments yield "".
func (e *SyscallEvent) ArgumentString(name string) string {
	if v, ok := e.Argument(name).(string); ok {
		return v
	}
	return ""
}

// Succeeded reports whether the call's raw return value denotes success.
func (e *SyscallEvent) Succeeded() bool {
	return e.ReturnValue == "" || e.ReturnValue == "0"
}
