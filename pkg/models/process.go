package models

import "time"

// CallStream is a lazy, restartable view over one process's API calls.
// Every Each invocation replays the underlying trace from the beginning,
// so two traversals never observe each other's state.
type CallStream interface {
	Each(fn func(*SyscallEvent) bool)
}

// ProcessRecord is one reconstructed process. Name and command line stay
// empty until the first successful execve observed for the pid.
type ProcessRecord struct {
	PID         int        `json:"pid"`
	PPID        int        `json:"ppid"`
	ProcessName string     `json:"process_name"`
	CommandLine string     `json:"command_line"`
	FirstSeen   time.Time  `json:"first_seen"`
	Calls       CallStream `json:"-"`
}

// Fact is a derived generic behavioral observation, e.g. a file being
// opened or an IP being contacted.
type Fact struct {
	PID      int    `json:"pid"`
	Category string `json:"category"`
	Value    any    `json:"value"`
}
