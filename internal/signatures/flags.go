package signatures

import (
	"time"

	"tracesig/pkg/models"
)

// FlagQuery selects flags by any subset of fields. Nil pointer fields
// match everything; Before and After are inclusive bounds.
type FlagQuery struct {
	Name   string
	PID    *int
	TID    *int
	Before *time.Time
	After  *time.Time
}

// Int is a pointer helper for FlagQuery.
func Int(v int) *int { return &v }

// Time is a pointer helper for FlagQuery.
func Time(t time.Time) *time.Time { return &t }

// Flags keeps the named, timestamped breadcrumbs a signature sets during
// on-call processing for later lookup. Duplicate tuples are stored once.
type Flags struct {
	data []models.SignatureFlag
}

// Set records a flag unless the identical tuple already exists.
func (f *Flags) Set(name string, pid, tid int, ts time.Time) {
	flag := models.SignatureFlag{Name: name, PID: pid, TID: tid, Timestamp: ts}
	for _, existing := range f.data {
		if existing == flag {
			return
		}
	}
	f.data = append(f.data, flag)
}

// Find returns flags satisfying every constraint of the query, in
// insertion order.
func (f *Flags) Find(q FlagQuery) []models.SignatureFlag {
	var out []models.SignatureFlag
	for _, flag := range f.data {
		if q.Name != "" && flag.Name != q.Name {
			continue
		}
		if q.PID != nil && flag.PID != *q.PID {
			continue
		}
		if q.TID != nil && flag.TID != *q.TID {
			continue
		}
		if q.Before != nil && flag.Timestamp.After(*q.Before) {
			continue
		}
		if q.After != nil && flag.Timestamp.Before(*q.After) {
			continue
		}
		out = append(out, flag)
	}
	return out
}

// Reset drops all recorded flags.
func (f *Flags) Reset() {
	f.data = nil
}
