// Package models contains the domain types shared across the workflow
// engine, storage layer, queue runtime, and API surface.
package models

import "time"

// RiskLevel classifies a risk score.
type RiskLevel string

// Risk levels, derived strictly from the score thresholds 25/50/75.
const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Sentiment labels a text snippet.
type Sentiment string

// Sentiment labels.
const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// LevelForScore derives the risk level from a 0–100 score.
func LevelForScore(score int) RiskLevel {
	switch {
	case score >= 75:
		return RiskCritical
	case score >= 50:
		return RiskHigh
	case score >= 25:
		return RiskMedium
	default:
		return RiskLow
	}
}

// ReportMetadata describes the provenance of a report.
type ReportMetadata struct {
	ClientName   string    `json:"client_name"`
	INN          string    `json:"inn,omitempty"`
	AnalysisDate time.Time `json:"analysis_date"`
	SourcesUsed  []string  `json:"sources_used"`
}

// RiskAssessment is the scored outcome of an analysis.
type RiskAssessment struct {
	Score   int       `json:"score"`
	Level   RiskLevel `json:"level"`
	Factors []string  `json:"factors"`
}

// Finding is a single categorized observation extracted from the evidence.
type Finding struct {
	Category  string    `json:"category"`
	Source    string    `json:"source"`
	Sentiment Sentiment `json:"sentiment"`
	KeyPoints []string  `json:"key_points"`
}

// ClientAnalysisReport is the consolidated analysis of one counterparty.
type ClientAnalysisReport struct {
	Metadata        ReportMetadata `json:"metadata"`
	CompanyInfo     map[string]any `json:"company_info,omitempty"`
	LegalCasesCount int            `json:"legal_cases_count"`
	RiskAssessment  RiskAssessment `json:"risk_assessment"`
	Findings        []Finding      `json:"findings"`
	Summary         string         `json:"summary"`
	Citations       []string       `json:"citations,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`

	// Degraded marks a report built from the scorer alone after the LLM
	// cascade was exhausted or its output failed schema validation.
	Degraded bool `json:"degraded,omitempty"`
}

// ValidateReport checks the structural invariants an LLM-produced report must
// satisfy before it is accepted. Used for JSON-mode schema validation.
func ValidateReport(r *ClientAnalysisReport) error {
	if r == nil {
		return errNilReport
	}
	if r.Metadata.ClientName == "" {
		return errMissingClientName
	}
	if r.RiskAssessment.Score < 0 || r.RiskAssessment.Score > 100 {
		return errScoreOutOfRange
	}
	if r.Summary == "" {
		return errMissingSummary
	}
	for i := range r.Findings {
		switch r.Findings[i].Sentiment {
		case SentimentPositive, SentimentNeutral, SentimentNegative:
		default:
			return errBadSentiment
		}
	}
	return nil
}
