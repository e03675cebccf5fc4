package models

import "time"

// TaskStatus is the lifecycle state of an asynchronous analysis task.
type TaskStatus string

// Task statuses.
const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// AnalysisTask is a queued analysis request. Immutable after creation except
// for its terminal status, which the queue runtime tracks separately.
type AnalysisTask struct {
	TaskID     string    `json:"task_id"`
	ClientName string    `json:"client_name"`
	INN        string    `json:"inn,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	Priority   int       `json:"priority"` // 1..10, higher drains first
	CreatedAt  time.Time `json:"created_at"`
}

// TaskResult is published on the results channel when a task reaches a
// terminal state.
type TaskResult struct {
	TaskID      string                `json:"task_id"`
	Status      TaskStatus            `json:"status"`
	Report      *ClientAnalysisReport `json:"report,omitempty"`
	Error       string                `json:"error,omitempty"`
	CompletedAt time.Time             `json:"completed_at"`
}
