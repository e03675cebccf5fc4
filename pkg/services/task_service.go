package services

import (
	"context"

	"github.com/riskradar/riskradar/pkg/models"
	"github.com/riskradar/riskradar/pkg/queue"
)

// TaskView is the polling view of an asynchronous analysis task.
type TaskView struct {
	TaskID string                       `json:"task_id"`
	Status models.TaskStatus            `json:"status"`
	Report *models.ClientAnalysisReport `json:"result,omitempty"`
	Error  string                       `json:"error,omitempty"`
}

// TaskService reports the lifecycle state of queued analysis tasks.
type TaskService struct {
	broker queue.Broker
}

// NewTaskService creates a new TaskService.
func NewTaskService(broker queue.Broker) *TaskService {
	if broker == nil {
		panic("NewTaskService: broker must not be nil")
	}
	return &TaskService{broker: broker}
}

// Status returns the task's lifecycle state and, for terminal tasks, its
// outcome.
func (s *TaskService) Status(ctx context.Context, taskID string) (*TaskView, error) {
	if taskID == "" {
		return nil, NewValidationError("task_id", "task id is required")
	}

	status, known, err := s.broker.Status(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, ErrNotFound
	}

	view := &TaskView{TaskID: taskID, Status: status}
	if status == models.TaskCompleted || status == models.TaskFailed {
		result, ok, err := s.broker.GetResult(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if ok {
			view.Report = result.Report
			view.Error = result.Error
		}
	}
	return view, nil
}
