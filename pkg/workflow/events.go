// Package workflow implements the analysis state machine and its agents:
// planner, collector, analyzer, and writer. One session = one run of the
// machine; agents compute deltas and only the machine goroutine mutates the
// session state.
package workflow

import (
	"time"

	"github.com/riskradar/riskradar/pkg/errkind"
	"github.com/riskradar/riskradar/pkg/models"
)

// EventType discriminates bus events.
type EventType string

// Bus event types. The SSE adapter maps these to wire event names.
const (
	EventSessionStarted   EventType = "session_started"
	EventStageStarted     EventType = "stage_started"
	EventStageCompleted   EventType = "stage_completed"
	EventPlanReady        EventType = "plan_ready"
	EventSourceResult     EventType = "source_result"
	EventReportReady      EventType = "report_ready"
	EventAwaitingFeedback EventType = "awaiting_feedback"
	EventCompleted        EventType = "completed"
	EventFailed           EventType = "failed"
)

// Event is one bus message. Payload is one of the typed payload structs
// below, keyed by Type.
type Event struct {
	SessionID string    `json:"session_id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// SessionStartedPayload accompanies EventSessionStarted.
type SessionStartedPayload struct {
	ClientName string `json:"client_name"`
	INN        string `json:"inn,omitempty"`
}

// StagePayload accompanies stage transitions. Percent is the overall
// progress estimate for the session.
type StagePayload struct {
	Stage   models.Stage `json:"stage"`
	Percent int          `json:"percent"`
}

// PlanPayload accompanies EventPlanReady.
type PlanPayload struct {
	Plan []models.SearchIntent `json:"plan"`
}

// SourceResultPayload accompanies EventSourceResult, emitted in completion
// order.
type SourceResultPayload struct {
	Source     string              `json:"source"`
	Status     models.SourceStatus `json:"status"`
	DurationMS int64               `json:"duration_ms"`
	Error      string              `json:"error,omitempty"`
}

// ReportPayload accompanies EventReportReady and EventAwaitingFeedback.
type ReportPayload struct {
	ReportID string                       `json:"report_id,omitempty"`
	Report   *models.ClientAnalysisReport `json:"report"`
}

// CompletedPayload accompanies EventCompleted.
type CompletedPayload struct {
	ReportID   string                       `json:"report_id"`
	Report     *models.ClientAnalysisReport `json:"report"`
	SavedFiles []string                     `json:"saved_files,omitempty"`
}

// FailedPayload accompanies EventFailed.
type FailedPayload struct {
	Kind    errkind.Kind `json:"kind"`
	Message string       `json:"message"`
}
