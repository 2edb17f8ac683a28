package models

// Task is one analysis request popped off the input queue.
type Task struct {
	TaskID    string            `json:"task_id"`
	TracePath string            `json:"trace_path"`
	Options   map[string]string `json:"options,omitempty"`
}
