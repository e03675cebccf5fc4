package queue

import (
	"context"
	"time"

	"github.com/riskradar/riskradar/pkg/models"
)

// Broker is the queue backend. One Broker instance serves one named queue.
type Broker interface {
	// Enqueue adds a message. Duplicate IDs (still queued, in flight, or
	// dead-lettered) return ErrDuplicateTask.
	Enqueue(ctx context.Context, msg Message) error

	// Claim atomically moves the next pending message to the consumer's
	// processing list and increments its delivery count. Messages whose
	// delivery budget was already spent are moved to the dead-letter
	// queue transparently. Returns ErrNoTasks when nothing is pending.
	Claim(ctx context.Context, consumerID string) (*Delivery, error)

	// Ack removes a claimed message for good. Called after the outcome is
	// committed, or for permanent failures that must not be redelivered.
	Ack(ctx context.Context, d *Delivery) error

	// Nack records a transient failure. The message is requeued while its
	// delivery budget lasts, then dead-lettered. Returns whether it was
	// requeued.
	Nack(ctx context.Context, d *Delivery, taskErr error) (requeued bool, err error)

	// Heartbeat refreshes the claim timestamp for orphan detection.
	Heartbeat(ctx context.Context, d *Delivery) error

	// RecoverOrphans requeues messages whose claim heartbeat is older
	// than the threshold. Returns the number requeued.
	RecoverOrphans(ctx context.Context, olderThan time.Duration) (int, error)

	// Depth reports pending and dead-letter list lengths.
	Depth(ctx context.Context) (pending, deadLetters int, err error)

	// DeadLetters returns the newest dead letters, newest first.
	DeadLetters(ctx context.Context, limit int) ([]DeadLetter, error)

	// SetResult publishes a terminal outcome and updates the task status.
	SetResult(ctx context.Context, result *models.TaskResult) error

	// GetResult fetches a terminal outcome if present.
	GetResult(ctx context.Context, taskID string) (*models.TaskResult, bool, error)

	// Status reports the task lifecycle state.
	Status(ctx context.Context, taskID string) (models.TaskStatus, bool, error)

	// Ping verifies backend reachability.
	Ping(ctx context.Context) error
}

// Retention windows for task bookkeeping keys.
const (
	resultTTL = time.Hour
	statusTTL = 24 * time.Hour
)

// claimRecord is the heartbeat entry for one in-flight message.
type claimRecord struct {
	Consumer  string    `json:"consumer"`
	Raw       string    `json:"raw"`
	ClaimedAt time.Time `json:"claimed_at"`
	BeatAt    time.Time `json:"beat_at"`
}
