package models

import "time"

// AlertCounts summarizes what contributed to an alert score.
type AlertCounts struct {
	Signatures   int `json:"signatures"`
	AlertFlagged int `json:"alert_flagged"`
	Families     int `json:"families"`
}

// Alert is an aggregated verdict emitted when the scored signature
// matches of a task cross the alert threshold.
type Alert struct {
	AlertID     string             `json:"alert_id"`
	TaskID      string             `json:"task_id"`
	Score       int                `json:"score"`
	WindowStart time.Time          `json:"window_start"`
	WindowEnd   time.Time          `json:"window_end"`
	Families    []string           `json:"families,omitempty"`
	Counts      AlertCounts        `json:"counts"`
	Evidence    []*SignatureResult `json:"evidence,omitempty"`
}
