// Package queue implements the asynchronous task runtime: a Redis-list
// broker with per-consumer processing lists, delivery counting, a
// dead-letter queue, and a polling worker pool with orphan recovery. An
// in-memory broker provides the same semantics when Redis is not
// configured.
package queue

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/riskradar/riskradar/pkg/models"
)

// Queue names.
const (
	AnalysisQueue = "analysis"
	CacheQueue    = "cache"
)

// Broker-level sentinel errors.
var (
	// ErrNoTasks means the pending list is empty.
	ErrNoTasks = errors.New("no tasks available")
	// ErrDuplicateTask means a task with the same ID is already queued or
	// in flight.
	ErrDuplicateTask = errors.New("task already queued")
	// ErrAtCapacity means the concurrent-task budget is exhausted.
	ErrAtCapacity = errors.New("worker pool at capacity")
)

// Message is the broker envelope. Payload is opaque to the broker; each
// queue's executor knows its own payload type.
type Message struct {
	ID         string          `json:"id"`
	Payload    json.RawMessage `json:"payload"`
	Priority   int             `json:"priority"` // 1..10, higher drains first
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Delivery is one claimed message. The raw form is kept so the broker can
// remove exactly this entry from the processing list on ack.
type Delivery struct {
	Message
	// Attempt is 1 for the first delivery.
	Attempt  int
	consumer string
	raw      string
}

// DeadLetter wraps a message that exceeded its delivery budget.
type DeadLetter struct {
	Message   Message   `json:"message"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	FailedAt  time.Time `json:"failed_at"`
}

// ExecutionResult is what an executor hands back to the worker.
type ExecutionResult struct {
	Result *models.TaskResult
	// Retryable distinguishes transient failures (requeue until the
	// delivery budget runs out) from permanent ones (ack immediately).
	Retryable bool
}

// WorkerStatus is the health state of one worker.
type WorkerStatus string

// Worker statuses.
const (
	WorkerIdle    WorkerStatus = "idle"
	WorkerWorking WorkerStatus = "working"
)

// WorkerHealth is one worker's health snapshot.
type WorkerHealth struct {
	ID             string       `json:"id"`
	Status         WorkerStatus `json:"status"`
	CurrentTaskID  string       `json:"current_task_id,omitempty"`
	TasksProcessed int          `json:"tasks_processed"`
	LastActivity   time.Time    `json:"last_activity"`
}

// PoolHealth is the pool's health snapshot.
type PoolHealth struct {
	Healthy          bool           `json:"healthy"`
	Queue            string         `json:"queue"`
	ConsumerID       string         `json:"consumer_id"`
	ActiveWorkers    int            `json:"active_workers"`
	TotalWorkers     int            `json:"total_workers"`
	ActiveTasks      int            `json:"active_tasks"`
	MaxConcurrent    int            `json:"max_concurrent"`
	PendingDepth     int            `json:"pending_depth"`
	DeadLetterDepth  int            `json:"dead_letter_depth"`
	BrokerReachable  bool           `json:"broker_reachable"`
	BrokerError      string         `json:"broker_error,omitempty"`
	Workers          []WorkerHealth `json:"workers"`
	LastOrphanScan   time.Time      `json:"last_orphan_scan,omitempty"`
	OrphansRecovered int            `json:"orphans_recovered"`
}

// NewAnalysisMessage wraps an analysis task for the analysis queue.
func NewAnalysisMessage(task *models.AnalysisTask) (Message, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return Message{}, err
	}
	return Message{
		ID:         task.TaskID,
		Payload:    payload,
		Priority:   task.Priority,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// CacheInvalidation is the cache-queue payload: provider cache entries to
// drop after source data is known to be stale.
type CacheInvalidation struct {
	Keys   []string `json:"keys"`
	Reason string   `json:"reason,omitempty"`
}
