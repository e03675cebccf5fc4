package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/riskradar/riskradar/pkg/models"
)

// Worker is one polling goroutine of a pool.
type Worker struct {
	id   string
	pool *Pool
	log  *slog.Logger

	stopWait sync.WaitGroup

	mu             sync.RWMutex
	status         WorkerStatus
	currentTaskID  string
	tasksProcessed int
	lastActivity   time.Time
}

func newWorker(id string, pool *Pool) *Worker {
	return &Worker{
		id:           id,
		pool:         pool,
		log:          slog.With("component", "queue.worker", "worker_id", id),
		status:       WorkerIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.stopWait.Add(1)
	go w.run(ctx)
}

// Wait blocks until the worker's loop has exited.
func (w *Worker) Wait() {
	w.stopWait.Wait()
}

// Health returns the worker's health snapshot.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:             w.id,
		Status:         w.status,
		CurrentTaskID:  w.currentTaskID,
		TasksProcessed: w.tasksProcessed,
		LastActivity:   w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.stopWait.Done()
	w.log.Info("worker started")

	for {
		select {
		case <-w.pool.stopCh:
			w.log.Info("worker shutting down")
			return
		case <-ctx.Done():
			w.log.Info("context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoTasks) || errors.Is(err, ErrAtCapacity) {
					w.sleep(w.pollInterval())
					continue
				}
				w.log.Error("task processing error", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.pool.stopCh:
	case <-time.After(d):
	}
}

// pollInterval returns the poll duration with jitter in
// [base−jitter, base+jitter].
func (w *Worker) pollInterval() time.Duration {
	base := w.pool.cfg.PollInterval
	jitter := w.pool.cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	return base - jitter + time.Duration(rand.Int64N(int64(2*jitter)))
}

func (w *Worker) pollAndProcess(ctx context.Context) error {
	if w.pool.atCapacity() {
		return ErrAtCapacity
	}

	delivery, err := w.pool.broker.Claim(ctx, w.pool.consumerID)
	if err != nil {
		return err
	}
	log := w.log.With("task_id", delivery.ID, "attempt", delivery.Attempt)
	log.Info("task claimed")

	w.setStatus(WorkerWorking, delivery.ID)
	defer w.setStatus(WorkerIdle, "")

	taskCtx, cancelTask := context.WithTimeout(ctx, w.pool.cfg.TaskTimeout)
	defer cancelTask()
	w.pool.registerTask(delivery.ID, cancelTask)
	defer w.pool.unregisterTask(delivery.ID)

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go w.runHeartbeat(heartbeatCtx, delivery)

	outcome := w.pool.executor.Execute(taskCtx, delivery)
	outcome = w.normalizeOutcome(taskCtx, delivery, outcome)
	stopHeartbeat()

	// Outcome handling runs on a fresh context: the task context may be
	// dead by now.
	if err := w.settle(context.Background(), delivery, outcome); err != nil {
		log.Error("settling task outcome failed", "error", err)
		return err
	}

	w.mu.Lock()
	w.tasksProcessed++
	w.mu.Unlock()
	log.Info("task processing complete", "status", outcome.Result.Status)
	return nil
}

// normalizeOutcome guards against nil results and folds context expiry into
// a terminal result. A task that spent its whole timeout is not retried.
func (w *Worker) normalizeOutcome(taskCtx context.Context, d *Delivery, outcome ExecutionResult) ExecutionResult {
	if outcome.Result == nil {
		switch {
		case errors.Is(taskCtx.Err(), context.DeadlineExceeded):
			outcome.Result = &models.TaskResult{
				TaskID: d.ID,
				Status: models.TaskFailed,
				Error:  fmt.Sprintf("task timed out after %v", w.pool.cfg.TaskTimeout),
			}
			outcome.Retryable = false
		case errors.Is(taskCtx.Err(), context.Canceled):
			outcome.Result = &models.TaskResult{
				TaskID: d.ID,
				Status: models.TaskFailed,
				Error:  "task cancelled",
			}
			outcome.Retryable = false
		default:
			outcome.Result = &models.TaskResult{
				TaskID: d.ID,
				Status: models.TaskFailed,
				Error:  "executor returned no result",
			}
			outcome.Retryable = false
		}
	}
	if outcome.Result.CompletedAt.IsZero() {
		outcome.Result.CompletedAt = time.Now().UTC()
	}
	return outcome
}

// settle commits the outcome: completed and permanent failures are stored
// then acked; transient failures are requeued while the delivery budget
// lasts.
func (w *Worker) settle(ctx context.Context, d *Delivery, outcome ExecutionResult) error {
	if outcome.Result.Status == models.TaskFailed && outcome.Retryable {
		requeued, err := w.pool.broker.Nack(ctx, d, errors.New(outcome.Result.Error))
		if err != nil {
			return err
		}
		if requeued {
			return nil
		}
		// Delivery budget spent: the message is in the DLQ; publish the
		// terminal outcome for result watchers.
		return w.pool.broker.SetResult(ctx, outcome.Result)
	}

	if err := w.pool.broker.SetResult(ctx, outcome.Result); err != nil {
		return err
	}
	return w.pool.broker.Ack(ctx, d)
}

func (w *Worker) runHeartbeat(ctx context.Context, d *Delivery) {
	interval := w.pool.cfg.OrphanThreshold / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.pool.broker.Heartbeat(ctx, d); err != nil {
				w.log.Warn("heartbeat failed", "task_id", d.ID, "error", err)
			}
		}
	}
}

func (w *Worker) setStatus(status WorkerStatus, taskID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentTaskID = taskID
	w.lastActivity = time.Now()
}
