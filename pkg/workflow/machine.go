package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riskradar/riskradar/pkg/config"
	"github.com/riskradar/riskradar/pkg/errkind"
	"github.com/riskradar/riskradar/pkg/inn"
	"github.com/riskradar/riskradar/pkg/llm"
	"github.com/riskradar/riskradar/pkg/models"
	"github.com/riskradar/riskradar/pkg/providers"
	"github.com/riskradar/riskradar/pkg/scoring"
	"github.com/riskradar/riskradar/pkg/storage"
)

// Input starts one analysis session.
type Input struct {
	ClientName string
	INN        string
	Notes      string

	// SessionID pins the session identifier, used by queue workers for
	// idempotent delivery. Empty means a fresh UUID.
	SessionID string

	// AwaitFeedback holds the session open after the report is produced
	// until the caller rates it (interactive streaming mode).
	AwaitFeedback bool
}

// Outcome is a finished session.
type Outcome struct {
	SessionID string                       `json:"session_id"`
	ReportID  string                       `json:"report_id"`
	Report    *models.ClientAnalysisReport `json:"report"`
}

// runningSession tracks one in-flight session for cancellation and
// feedback delivery.
type runningSession struct {
	cancel   context.CancelFunc
	feedback chan models.Feedback
}

// Machine owns the analysis state machine. One Run call drives one session
// through planning, collecting, analyzing, optional feedback, and
// persisting. The machine goroutine is the only writer of session state.
type Machine struct {
	planner   *Planner
	collector *Collector
	analyzer  *Analyzer
	writer    *Writer
	bus       *Bus
	cfg       *config.Config
	log       *slog.Logger

	mu       sync.Mutex
	sessions map[string]*runningSession
}

// NewMachine wires the machine from its agents' dependencies.
func NewMachine(cfg *config.Config, set *providers.Set, cascade *llm.Cascade, store *storage.Store, bus *Bus) *Machine {
	return &Machine{
		planner:   NewPlanner(),
		collector: NewCollector(set),
		analyzer:  NewAnalyzer(cascade, scoring.NewScorer(cfg.Risk)),
		writer:    NewWriter(store),
		bus:       bus,
		cfg:       cfg,
		log:       slog.With("component", "workflow.machine"),
		sessions:  make(map[string]*runningSession),
	}
}

// Bus exposes the event bus for stream subscribers.
func (m *Machine) Bus() *Bus { return m.bus }

// Run executes one session to completion. The whole session is bounded by
// the configured workflow timeout; hitting it fails the session with the
// timeout kind.
func (m *Machine) Run(ctx context.Context, input Input) (*Outcome, error) {
	sessionID := input.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.WorkflowTimeout)
	defer cancel()

	session := &runningSession{cancel: cancel, feedback: make(chan models.Feedback, 1)}
	if err := m.register(sessionID, session); err != nil {
		return nil, err
	}
	defer m.unregister(sessionID)

	now := time.Now().UTC()
	state := &models.WorkflowState{
		SessionID:       sessionID,
		ClientName:      input.ClientName,
		INN:             normalizeINN(input.INN, m.log),
		AdditionalNotes: input.Notes,
		StartedAt:       now,
		UpdatedAt:       now,
	}
	m.bus.Publish(Event{
		SessionID: sessionID,
		Type:      EventSessionStarted,
		Payload:   SessionStartedPayload{ClientName: state.ClientName, INN: state.INN},
	})

	outcome, err := m.run(ctx, state, input, session)
	if err != nil {
		return nil, m.fail(ctx, state, err)
	}
	return outcome, nil
}

func (m *Machine) run(ctx context.Context, state *models.WorkflowState, input Input, session *runningSession) (*Outcome, error) {
	m.enterStage(ctx, state, models.StagePlanning, 10)
	plan, err := m.planner.Plan(state.ClientName, state.INN, state.AdditionalNotes)
	if err != nil {
		return nil, err
	}
	state.Plan = plan
	m.bus.Publish(Event{SessionID: state.SessionID, Type: EventPlanReady, Payload: PlanPayload{Plan: plan}})

	m.enterStage(ctx, state, models.StageCollecting, 25)
	collected, err := m.collector.Collect(ctx, state.SessionID, state.INN, plan, m.bus.Publish)
	if collected != nil {
		state.SourceData = collected.SourceData
		state.SearchResults = collected.SearchResults
		state.CollectionStats = collected.Stats
	}
	if err != nil {
		return nil, err
	}

	for {
		m.enterStage(ctx, state, models.StageAnalyzing, 60)
		report, err := m.analyzer.Analyze(ctx, state)
		if err != nil {
			return nil, err
		}
		state.Report = report
		m.bus.Publish(Event{
			SessionID: state.SessionID,
			Type:      EventReportReady,
			Payload:   ReportPayload{Report: report},
		})

		if !input.AwaitFeedback {
			break
		}
		accepted, err := m.awaitFeedback(ctx, state, session)
		if err != nil {
			return nil, err
		}
		if accepted {
			break
		}
	}

	m.enterStage(ctx, state, models.StagePersisting, 90)
	reportID, err := m.writer.Persist(ctx, state)
	if err != nil {
		return nil, err
	}

	m.enterStage(ctx, state, models.StageCompleted, 100)
	m.bus.Publish(Event{
		SessionID: state.SessionID,
		Type:      EventCompleted,
		Payload:   CompletedPayload{ReportID: reportID, Report: state.Report},
	})
	return &Outcome{SessionID: state.SessionID, ReportID: reportID, Report: state.Report}, nil
}

// Resume re-runs analysis for a completed session from its persisted thread,
// applying reviewer feedback. It never replans or recollects; the existing
// evidence is re-synthesized, plus a restricted collection pass when the
// feedback names focus areas. Produces and persists a fresh report.
func (m *Machine) Resume(ctx context.Context, thread *models.ThreadRecord, fb models.Feedback) (*Outcome, error) {
	state := thread.ThreadData
	if state.Report == nil {
		return nil, errkind.New(errkind.InvalidInput,
			"session %s has no report to rerun", thread.ThreadID)
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.WorkflowTimeout)
	defer cancel()

	session := &runningSession{cancel: cancel, feedback: make(chan models.Feedback, 1)}
	if err := m.register(state.SessionID, session); err != nil {
		return nil, err
	}
	defer m.unregister(state.SessionID)

	state.RetryCount++
	if state.RetryCount > m.cfg.MaxFeedbackRetries {
		return nil, m.fail(ctx, &state, errkind.New(errkind.InvalidInput,
			"feedback retry limit reached (%d)", m.cfg.MaxFeedbackRetries))
	}
	state.PreviousReport = state.Report
	state.Report = nil
	state.UserFeedback = fb.Rating
	state.UserComment = fb.Comment
	state.Error = ""

	outcome, err := m.resume(ctx, &state, fb.FocusAreas)
	if err != nil {
		return nil, m.fail(ctx, &state, err)
	}
	return outcome, nil
}

func (m *Machine) resume(ctx context.Context, state *models.WorkflowState, focusAreas []string) (*Outcome, error) {
	if len(focusAreas) > 0 {
		if err := m.collectFocused(ctx, state, focusAreas); err != nil {
			return nil, err
		}
	}

	m.enterStage(ctx, state, models.StageAnalyzing, 60)
	report, err := m.analyzer.Analyze(ctx, state)
	if err != nil {
		return nil, err
	}
	state.Report = report
	m.bus.Publish(Event{
		SessionID: state.SessionID,
		Type:      EventReportReady,
		Payload:   ReportPayload{Report: report},
	})

	m.enterStage(ctx, state, models.StagePersisting, 90)
	reportID, err := m.writer.Persist(ctx, state)
	if err != nil {
		return nil, err
	}

	m.enterStage(ctx, state, models.StageCompleted, 100)
	m.bus.Publish(Event{
		SessionID: state.SessionID,
		Type:      EventCompleted,
		Payload:   CompletedPayload{ReportID: reportID, Report: state.Report},
	})
	return &Outcome{SessionID: state.SessionID, ReportID: reportID, Report: state.Report}, nil
}

// awaitFeedback blocks until the caller rates the report or the session
// times out. Returns true when the report was accepted and should be
// persisted as-is.
func (m *Machine) awaitFeedback(ctx context.Context, state *models.WorkflowState, session *runningSession) (bool, error) {
	m.enterStage(ctx, state, models.StageAwaitingFeedback, 80)
	m.bus.Publish(Event{
		SessionID: state.SessionID,
		Type:      EventAwaitingFeedback,
		Payload:   ReportPayload{Report: state.Report},
	})

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case fb := <-session.feedback:
		if fb.Rating == models.FeedbackAccurate || !fb.RerunAnalysis {
			return true, nil
		}
		state.RetryCount++
		if state.RetryCount > m.cfg.MaxFeedbackRetries {
			return false, errkind.New(errkind.InvalidInput,
				"feedback retry limit reached (%d)", m.cfg.MaxFeedbackRetries)
		}
		state.PreviousReport = state.Report
		state.Report = nil
		state.UserFeedback = fb.Rating
		state.UserComment = fb.Comment

		// Focused feedback re-collects targeted search intents; plain
		// feedback re-runs analysis over the existing evidence.
		if len(fb.FocusAreas) > 0 {
			if err := m.collectFocused(ctx, state, fb.FocusAreas); err != nil {
				return false, err
			}
		}
		return false, nil
	}
}

// collectFocused runs one extra collection pass over custom intents built
// from the reviewer's focus areas, merging new snippets into the state.
func (m *Machine) collectFocused(ctx context.Context, state *models.WorkflowState, focusAreas []string) error {
	var focused []models.SearchIntent
	for _, area := range focusAreas {
		focused = append(focused, models.SearchIntent{
			Category: models.IntentCustom,
			Query:    state.ClientName + " " + area,
		})
	}

	m.enterStage(ctx, state, models.StageCollecting, 85)
	collected, err := m.collector.Collect(ctx, state.SessionID, "", focused, m.bus.Publish)
	if collected != nil {
		for source, env := range collected.SourceData {
			state.SourceData[source] = env
		}
		state.SearchResults = append(state.SearchResults, collected.SearchResults...)
	}
	if err != nil && errkind.KindOf(err) != errkind.InsufficientData {
		// A fully failed focus pass still leaves the original evidence.
		return err
	}
	return nil
}

// fail moves the session to the failed stage and normalizes the error kind.
// Context expiry becomes WorkflowTimeout; explicit cancellation becomes
// Cancelled.
func (m *Machine) fail(ctx context.Context, state *models.WorkflowState, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		err = errkind.Wrap(errkind.WorkflowTimeout, err, "session exceeded the workflow timeout")
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		if errkind.KindOf(err) != errkind.Cancelled {
			err = errkind.Wrap(errkind.Cancelled, err, "session cancelled")
		}
	}

	state.Stage = models.StageFailed
	state.Error = err.Error()
	state.UpdatedAt = time.Now().UTC()

	// Snapshot on a fresh context: the session context is likely dead.
	snapCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if snapErr := m.writer.Snapshot(snapCtx, state); snapErr != nil {
		m.log.Warn("failed-session snapshot not saved", "session_id", state.SessionID, "error", snapErr)
	}

	m.bus.Publish(Event{
		SessionID: state.SessionID,
		Type:      EventFailed,
		Payload:   FailedPayload{Kind: errkind.KindOf(err), Message: err.Error()},
	})
	m.log.Warn("session failed",
		"session_id", state.SessionID, "kind", errkind.KindOf(err), "error", err)
	return err
}

func (m *Machine) enterStage(ctx context.Context, state *models.WorkflowState, stage models.Stage, percent int) {
	if state.Stage != "" {
		m.bus.Publish(Event{
			SessionID: state.SessionID,
			Type:      EventStageCompleted,
			Payload:   StagePayload{Stage: state.Stage, Percent: percent},
		})
	}
	state.Stage = stage
	state.UpdatedAt = time.Now().UTC()
	m.bus.Publish(Event{
		SessionID: state.SessionID,
		Type:      EventStageStarted,
		Payload:   StagePayload{Stage: stage, Percent: percent},
	})
	m.log.Info("stage entered", "session_id", state.SessionID, "stage", stage)

	if err := m.writer.Snapshot(ctx, state); err != nil {
		m.log.Warn("stage snapshot not saved", "session_id", state.SessionID, "stage", stage, "error", err)
	}
}

// SubmitFeedback delivers a rating to a session waiting in the feedback
// stage.
func (m *Machine) SubmitFeedback(sessionID string, fb models.Feedback) error {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return errkind.New(errkind.NotFound, "no running session %s", sessionID)
	}
	select {
	case session.feedback <- fb:
		return nil
	default:
		return errkind.New(errkind.InvalidInput, "session %s is not awaiting feedback", sessionID)
	}
}

// Cancel aborts a running session. Returns false when no such session is
// running.
func (m *Machine) Cancel(sessionID string) bool {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if ok {
		session.cancel()
	}
	return ok
}

// Running reports whether a session is currently in flight.
func (m *Machine) Running(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[sessionID]
	return ok
}

// RunningCount reports in-flight sessions, used by health reporting.
func (m *Machine) RunningCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Machine) register(sessionID string, session *runningSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[sessionID]; exists {
		return errkind.New(errkind.InvalidInput, "session %s is already running", sessionID)
	}
	m.sessions[sessionID] = session
	return nil
}

func (m *Machine) unregister(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// normalizeINN drops a syntactically invalid INN so the session proceeds
// name-only, matching the planner's policy.
func normalizeINN(raw string, log *slog.Logger) string {
	if raw == "" {
		return ""
	}
	if !inn.IsValid(raw) {
		log.Warn("dropping invalid INN from session input", "inn", raw)
		return ""
	}
	return raw
}
