package models

import "errors"

// Report validation errors.
var (
	errNilReport         = errors.New("report is nil")
	errMissingClientName = errors.New("metadata.client_name is required")
	errScoreOutOfRange   = errors.New("risk_assessment.score must be in [0,100]")
	errMissingSummary    = errors.New("summary is required")
	errBadSentiment      = errors.New("finding sentiment must be positive, neutral, or negative")
)
