package api

// AnalyzeRequest is the body of POST /api/v1/agent/analyze-client and its
// async variant.
type AnalyzeRequest struct {
	ClientName      string `json:"client_name"`
	INN             string `json:"inn,omitempty"`
	AdditionalNotes string `json:"additional_notes,omitempty"`
	// Priority applies to the async variant only; 1..10, default 5.
	Priority int `json:"priority,omitempty"`
	// AwaitFeedback holds a streaming session open for an in-stream rating
	// before it is persisted.
	AwaitFeedback bool `json:"await_feedback,omitempty"`
}

// FeedbackRequest is the body of POST /api/v1/agent/feedback.
type FeedbackRequest struct {
	ReportID      string   `json:"report_id"`
	Rating        string   `json:"rating"`
	Comment       string   `json:"comment,omitempty"`
	FocusAreas    []string `json:"focus_areas,omitempty"`
	RerunAnalysis bool     `json:"rerun_analysis"`
}
