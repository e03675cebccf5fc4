package models

import "time"

// Stage is the workflow state machine discriminant.
type Stage string

// Workflow stages.
const (
	StagePlanning         Stage = "planning"
	StageCollecting       Stage = "collecting"
	StageAnalyzing        Stage = "analyzing"
	StageAwaitingFeedback Stage = "awaiting_feedback"
	StagePersisting       Stage = "persisting"
	StageCompleted        Stage = "completed"
	StageFailed           Stage = "failed"
)

// IntentCategory classifies a search intent.
type IntentCategory string

// Intent categories. The five built-in categories are always planned when
// inputs permit; custom intents come from operator notes.
const (
	IntentReputation IntentCategory = "reputation"
	IntentLawsuits   IntentCategory = "lawsuits"
	IntentNews       IntentCategory = "news"
	IntentNegative   IntentCategory = "negative"
	IntentFinancial  IntentCategory = "financial"
	IntentCustom     IntentCategory = "custom"
)

// SearchIntent is one (category, query) pair driving a web-search call.
type SearchIntent struct {
	Category IntentCategory `json:"category"`
	Query    string         `json:"query"`
}

// SourceStatus is the outcome of one provider call.
type SourceStatus string

// Source statuses.
const (
	SourceSuccess SourceStatus = "success"
	SourcePartial SourceStatus = "partial"
	SourceFailed  SourceStatus = "failed"
)

// SourceResultEnvelope is the uniform wrapper every provider client returns.
type SourceResultEnvelope struct {
	Source     string       `json:"source"`
	Status     SourceStatus `json:"status"`
	Payload    any          `json:"payload,omitempty"`
	Error      string       `json:"error,omitempty"`
	DurationMS int64        `json:"duration_ms"`
}

// SearchSnippet is one annotated web-search result.
type SearchSnippet struct {
	IntentCategory IntentCategory `json:"intent_category"`
	Source         string         `json:"source"`
	Query          string         `json:"query"`
	Content        string         `json:"content"`
	Citations      []string       `json:"citations,omitempty"`
	Sentiment      Sentiment      `json:"sentiment"`
	SentimentScore float64        `json:"sentiment_score"`
}

// CollectionStats summarizes one collection pass.
type CollectionStats struct {
	SuccessfulSources []string `json:"successful_sources"`
	FailedSources     []string `json:"failed_sources,omitempty"`
	DurationMS        int64    `json:"duration_ms"`
}

// FeedbackRating is the caller's verdict on a report.
type FeedbackRating string

// Feedback ratings.
const (
	FeedbackAccurate          FeedbackRating = "accurate"
	FeedbackPartiallyAccurate FeedbackRating = "partially_accurate"
	FeedbackInaccurate        FeedbackRating = "inaccurate"
)

// Feedback is user guidance injected into an analysis re-run.
type Feedback struct {
	ReportID      string         `json:"report_id"`
	Rating        FeedbackRating `json:"rating"`
	Comment       string         `json:"comment,omitempty"`
	FocusAreas    []string       `json:"focus_areas,omitempty"`
	RerunAnalysis bool           `json:"rerun_analysis"`
}

// WorkflowState is the mutable state of one analysis session. Only the state
// machine goroutine mutates it; agents receive a read-only view and return
// deltas.
type WorkflowState struct {
	SessionID       string                          `json:"session_id"`
	ClientName      string                          `json:"client_name"`
	INN             string                          `json:"inn,omitempty"`
	AdditionalNotes string                          `json:"additional_notes,omitempty"`
	Stage           Stage                           `json:"stage"`
	Plan            []SearchIntent                  `json:"plan,omitempty"`
	SourceData      map[string]SourceResultEnvelope `json:"source_data,omitempty"`
	SearchResults   []SearchSnippet                 `json:"search_results,omitempty"`
	CollectionStats CollectionStats                 `json:"collection_stats"`
	Report          *ClientAnalysisReport           `json:"report,omitempty"`
	PreviousReport  *ClientAnalysisReport           `json:"previous_report,omitempty"`
	RetryCount      int                             `json:"retry_count"`
	UserFeedback    FeedbackRating                  `json:"user_feedback,omitempty"`
	UserComment     string                          `json:"user_comment,omitempty"`
	Error           string                          `json:"error,omitempty"`
	StartedAt       time.Time                       `json:"started_at"`
	UpdatedAt       time.Time                       `json:"updated_at"`
}
