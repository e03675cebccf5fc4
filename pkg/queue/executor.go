package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/riskradar/riskradar/pkg/errkind"
	"github.com/riskradar/riskradar/pkg/models"
	"github.com/riskradar/riskradar/pkg/storage"
	"github.com/riskradar/riskradar/pkg/workflow"
)

// redeliveryWindow is how long a completed session shields its task ID from
// being re-run by a duplicate delivery.
const redeliveryWindow = time.Minute

// AnalysisRunner is the slice of the workflow machine the analysis executor
// needs.
type AnalysisRunner interface {
	Run(ctx context.Context, input workflow.Input) (*workflow.Outcome, error)
	Running(sessionID string) bool
}

// AnalysisExecutor runs queued analysis tasks through the workflow machine.
// The task ID doubles as the session ID, which makes redelivery idempotent:
// a duplicate updates the existing thread instead of producing a second
// report.
type AnalysisExecutor struct {
	runner AnalysisRunner
	store  *storage.Store
	log    *slog.Logger
}

// NewAnalysisExecutor creates the executor for the analysis queue.
func NewAnalysisExecutor(runner AnalysisRunner, store *storage.Store) *AnalysisExecutor {
	return &AnalysisExecutor{
		runner: runner,
		store:  store,
		log:    slog.With("component", "queue.analysis_executor"),
	}
}

// Execute processes one delivery. Workflow outcomes, good or bad, are
// terminal; only storage outages are handed back for redelivery.
func (e *AnalysisExecutor) Execute(ctx context.Context, d *Delivery) ExecutionResult {
	var task models.AnalysisTask
	if err := json.Unmarshal(d.Payload, &task); err != nil {
		return permanentFailure(d.ID, fmt.Sprintf("undecodable analysis task: %v", err))
	}
	if task.TaskID == "" {
		task.TaskID = d.ID
	}

	if done := e.priorOutcome(ctx, task.TaskID); done != nil {
		e.log.Info("duplicate delivery resolved from existing thread", "task_id", task.TaskID)
		return *done
	}
	if e.runner.Running(task.TaskID) {
		// Another delivery of this task is mid-flight; its outcome will
		// supersede this result.
		return permanentFailure(task.TaskID, "duplicate delivery: session already running")
	}

	outcome, err := e.runner.Run(ctx, workflow.Input{
		SessionID:  task.TaskID,
		ClientName: task.ClientName,
		INN:        task.INN,
		Notes:      task.Notes,
	})
	if err != nil {
		kind := errkind.KindOf(err)
		return ExecutionResult{
			Result: &models.TaskResult{
				TaskID:      task.TaskID,
				Status:      models.TaskFailed,
				Error:       fmt.Sprintf("%s: %s", kind, err.Error()),
				CompletedAt: time.Now().UTC(),
			},
			Retryable: kind == errkind.StorageUnavailable,
		}
	}

	return ExecutionResult{
		Result: &models.TaskResult{
			TaskID:      task.TaskID,
			Status:      models.TaskCompleted,
			Report:      outcome.Report,
			CompletedAt: time.Now().UTC(),
		},
	}
}

// priorOutcome returns the stored outcome for a task whose session already
// completed within the redelivery window, or nil when the task must run.
func (e *AnalysisExecutor) priorOutcome(ctx context.Context, taskID string) *ExecutionResult {
	thread, err := e.store.GetThread(ctx, taskID)
	if err != nil || thread.ThreadData.Report == nil {
		return nil
	}
	if thread.ThreadData.Stage != models.StageCompleted {
		return nil
	}
	if time.Since(thread.UpdatedAt) > redeliveryWindow {
		return nil
	}
	return &ExecutionResult{
		Result: &models.TaskResult{
			TaskID:      taskID,
			Status:      models.TaskCompleted,
			Report:      thread.ThreadData.Report,
			CompletedAt: time.Now().UTC(),
		},
	}
}

// CacheExecutor drops provider cache entries named by cache-invalidation
// jobs.
type CacheExecutor struct {
	store *storage.Store
	log   *slog.Logger
}

// NewCacheExecutor creates the executor for the cache queue.
func NewCacheExecutor(store *storage.Store) *CacheExecutor {
	return &CacheExecutor{
		store: store,
		log:   slog.With("component", "queue.cache_executor"),
	}
}

// Execute deletes every key named by the job. Storage errors are retryable;
// an undecodable job is not.
func (e *CacheExecutor) Execute(ctx context.Context, d *Delivery) ExecutionResult {
	var job CacheInvalidation
	if err := json.Unmarshal(d.Payload, &job); err != nil {
		return permanentFailure(d.ID, fmt.Sprintf("undecodable cache invalidation: %v", err))
	}

	for _, key := range job.Keys {
		if err := e.store.CacheDelete(ctx, key); err != nil {
			return ExecutionResult{
				Result: &models.TaskResult{
					TaskID:      d.ID,
					Status:      models.TaskFailed,
					Error:       fmt.Sprintf("deleting cache key %s: %v", key, err),
					CompletedAt: time.Now().UTC(),
				},
				Retryable: true,
			}
		}
	}
	e.log.Info("cache invalidation applied",
		"task_id", d.ID, "keys", len(job.Keys), "reason", job.Reason)
	return ExecutionResult{
		Result: &models.TaskResult{
			TaskID:      d.ID,
			Status:      models.TaskCompleted,
			CompletedAt: time.Now().UTC(),
		},
	}
}

func permanentFailure(taskID, message string) ExecutionResult {
	return ExecutionResult{
		Result: &models.TaskResult{
			TaskID:      taskID,
			Status:      models.TaskFailed,
			Error:       message,
			CompletedAt: time.Now().UTC(),
		},
	}
}
