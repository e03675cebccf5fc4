// Package services is the domain service layer between the HTTP surface and
// the core: it validates inputs, owns the sync/async/feedback entry points
// into the workflow machine, and presents storage and queue state as typed
// views.
package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/riskradar/riskradar/pkg/models"
	"github.com/riskradar/riskradar/pkg/queue"
	"github.com/riskradar/riskradar/pkg/storage"
	"github.com/riskradar/riskradar/pkg/workflow"
)

// DefaultTaskPriority is used when an enqueue request does not specify one.
const DefaultTaskPriority = 5

// AnalyzeInput contains the domain-level data needed to start a session.
// Transformed from the HTTP request by the handler.
type AnalyzeInput struct {
	ClientName string
	INN        string
	Notes      string
	// AwaitFeedback holds the session open after the report is produced
	// until the caller rates it over the stream.
	AwaitFeedback bool
}

// FeedbackOutcome describes what a feedback submission did.
type FeedbackOutcome struct {
	// Delivered is true when the rating went to a live session waiting in
	// the feedback stage.
	Delivered bool
	// Outcome is the re-run result for post-hoc reruns; nil when the
	// feedback was recorded without a re-run.
	Outcome *workflow.Outcome
}

// AnalysisService owns the analysis entry points: synchronous runs,
// detached streaming runs, queue enqueue, cancellation, and the feedback
// loop.
type AnalysisService struct {
	baseCtx context.Context
	machine *workflow.Machine
	store   *storage.Store
	broker  queue.Broker
	log     *slog.Logger
}

// NewAnalysisService creates the analysis service. baseCtx bounds detached
// runs: they survive client disconnects but not process shutdown.
func NewAnalysisService(baseCtx context.Context, machine *workflow.Machine, store *storage.Store, broker queue.Broker) *AnalysisService {
	if machine == nil {
		panic("NewAnalysisService: machine must not be nil")
	}
	if store == nil {
		panic("NewAnalysisService: store must not be nil")
	}
	return &AnalysisService{
		baseCtx: baseCtx,
		machine: machine,
		store:   store,
		broker:  broker,
		log:     slog.With("component", "services.analysis"),
	}
}

func validateInput(input AnalyzeInput) error {
	if strings.TrimSpace(input.ClientName) == "" {
		return NewValidationError("client_name", "client name is required")
	}
	return nil
}

// Analyze runs one session synchronously and returns the finished outcome.
func (s *AnalysisService) Analyze(ctx context.Context, input AnalyzeInput) (*workflow.Outcome, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	return s.machine.Run(ctx, workflow.Input{
		ClientName: input.ClientName,
		INN:        input.INN,
		Notes:      input.Notes,
	})
}

// StartDetached launches a session under the given ID on the service's base
// context and returns immediately. Callers subscribe to the event bus with
// the same ID before calling, so no events are missed; a disconnected
// subscriber does not stop the run.
func (s *AnalysisService) StartDetached(sessionID string, input AnalyzeInput) error {
	if err := validateInput(input); err != nil {
		return err
	}
	go func() {
		_, err := s.machine.Run(s.baseCtx, workflow.Input{
			SessionID:     sessionID,
			ClientName:    input.ClientName,
			INN:           input.INN,
			Notes:         input.Notes,
			AwaitFeedback: input.AwaitFeedback,
		})
		if err != nil {
			s.log.Warn("detached session finished with error",
				"session_id", sessionID, "error", err)
		}
	}()
	return nil
}

// Enqueue creates an analysis task and publishes it on the analysis queue.
// Returns the task ID for status polling.
func (s *AnalysisService) Enqueue(ctx context.Context, input AnalyzeInput, priority int) (string, error) {
	if err := validateInput(input); err != nil {
		return "", err
	}
	if s.broker == nil {
		return "", errors.New("queue broker is not configured")
	}
	if priority < 1 || priority > 10 {
		priority = DefaultTaskPriority
	}

	task := &models.AnalysisTask{
		TaskID:     uuid.NewString(),
		ClientName: input.ClientName,
		INN:        input.INN,
		Notes:      input.Notes,
		Priority:   priority,
		CreatedAt:  time.Now().UTC(),
	}
	msg, err := queue.NewAnalysisMessage(task)
	if err != nil {
		return "", err
	}
	if err := s.broker.Enqueue(ctx, msg); err != nil {
		if errors.Is(err, queue.ErrDuplicateTask) {
			return "", ErrAlreadyExists
		}
		return "", err
	}
	s.log.Info("analysis task enqueued",
		"task_id", task.TaskID, "client_name", task.ClientName, "priority", task.Priority)
	return task.TaskID, nil
}

// Cancel aborts a running session.
func (s *AnalysisService) Cancel(sessionID string) error {
	if sessionID == "" {
		return NewValidationError("session_id", "session id is required")
	}
	if !s.machine.Cancel(sessionID) {
		return ErrNotFound
	}
	return nil
}

// Running reports whether a session is currently in flight.
func (s *AnalysisService) Running(sessionID string) bool {
	return s.machine.Running(sessionID)
}

// RunningCount reports in-flight sessions for health reporting.
func (s *AnalysisService) RunningCount() int {
	return s.machine.RunningCount()
}

// Feedback routes a report rating. A live session waiting in the feedback
// stage receives it directly; otherwise an accepted rating is recorded on
// the thread, and a rejected rating with rerun_analysis re-runs the
// analysis from the persisted evidence.
func (s *AnalysisService) Feedback(ctx context.Context, fb models.Feedback) (*FeedbackOutcome, error) {
	if fb.ReportID == "" {
		return nil, NewValidationError("report_id", "report id is required")
	}
	switch fb.Rating {
	case models.FeedbackAccurate, models.FeedbackPartiallyAccurate, models.FeedbackInaccurate:
	default:
		return nil, NewValidationError("rating",
			"rating must be accurate, partially_accurate, or inaccurate")
	}

	report, err := s.store.GetReport(ctx, fb.ReportID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	sessionID := report.SessionID

	if s.machine.Running(sessionID) {
		if err := s.machine.SubmitFeedback(sessionID, fb); err != nil {
			return nil, err
		}
		return &FeedbackOutcome{Delivered: true}, nil
	}

	thread, err := s.store.GetThread(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if fb.Rating == models.FeedbackAccurate || !fb.RerunAnalysis {
		thread.ThreadData.UserFeedback = fb.Rating
		thread.ThreadData.UserComment = fb.Comment
		thread.UpdatedAt = time.Now().UTC()
		if err := s.store.SaveThread(ctx, thread); err != nil {
			return nil, err
		}
		return &FeedbackOutcome{}, nil
	}

	outcome, err := s.machine.Resume(ctx, thread, fb)
	if err != nil {
		return nil, err
	}
	return &FeedbackOutcome{Outcome: outcome}, nil
}
