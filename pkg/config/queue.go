package config

import "time"

// QueueConfig contains queue and worker pool configuration.
// These values control how tasks are polled, claimed, and processed.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per replica/pod.
	WorkerCount int

	// MaxConcurrentTasks is the global limit of tasks being processed
	// across all replicas. Enforced by a shared counter in storage.
	MaxConcurrentTasks int

	// PollInterval is the base interval for checking pending tasks.
	PollInterval time.Duration

	// PollIntervalJitter is the random jitter added to PollInterval.
	// Actual interval: PollInterval ± PollIntervalJitter.
	PollIntervalJitter time.Duration

	// TaskTimeout bounds a single task's processing, including the workflow.
	TaskTimeout time.Duration

	// GracefulShutdownTimeout is the max time to wait for active tasks to
	// complete during shutdown before they are abandoned for redelivery.
	GracefulShutdownTimeout time.Duration

	// MaxDeliveries is the per-message delivery cap; the message moves to
	// the dead-letter queue when a delivery beyond this would be needed.
	MaxDeliveries int

	// OrphanDetectionInterval is how often to scan processing lists for
	// messages claimed by dead consumers.
	OrphanDetectionInterval time.Duration

	// OrphanThreshold is how long a claimed message can go without a
	// heartbeat before it is requeued.
	OrphanThreshold time.Duration
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             10,
		MaxConcurrentTasks:      10,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		TaskTimeout:             6 * time.Minute,
		GracefulShutdownTimeout: 30 * time.Second,
		MaxDeliveries:           3,
		OrphanDetectionInterval: 1 * time.Minute,
		OrphanThreshold:         2 * time.Minute,
	}
}
