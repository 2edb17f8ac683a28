package models

import "time"

// Report is the per-task analysis output handed to downstream reporting.
type Report struct {
	TaskID      string             `json:"task_id"`
	GeneratedAt time.Time          `json:"generated_at"`
	Processes   []*ProcessRecord   `json:"processes"`
	Facts       []Fact             `json:"facts,omitempty"`
	Signatures  []*SignatureResult `json:"signatures"`
}
