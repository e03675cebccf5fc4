package models

import "time"

// ReportTTL is how long a stored report is retained.
const ReportTTL = 30 * 24 * time.Hour

// StoredReport is the durable form of a ClientAnalysisReport, denormalized
// for indexed lookups.
type StoredReport struct {
	ReportID   string               `json:"report_id"`
	SessionID  string               `json:"session_id,omitempty"`
	INN        string               `json:"inn,omitempty"`
	ClientName string               `json:"client_name"`
	ReportData ClientAnalysisReport `json:"report_data"`
	CreatedAt  time.Time            `json:"created_at"`
	ExpiresAt  time.Time            `json:"expires_at"`
	RiskLevel  RiskLevel            `json:"risk_level"`
	RiskScore  int                  `json:"risk_score"`
}

// ThreadRecord is the persisted snapshot of one analysis session. Threads
// have no TTL.
type ThreadRecord struct {
	ThreadID   string        `json:"thread_id"`
	ClientName string        `json:"client_name"`
	INN        string        `json:"inn,omitempty"`
	ThreadData WorkflowState `json:"thread_data"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// ThreadSummary is the listing view of a thread.
type ThreadSummary struct {
	ThreadID   string    `json:"thread_id"`
	ClientName string    `json:"client_name"`
	INN        string    `json:"inn,omitempty"`
	Stage      Stage     `json:"stage"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CacheEntry is one row of the cache space.
type CacheEntry struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	Source    string    `json:"source"`
}

// ReportFilters narrows a report listing. Zero values mean "no filter".
type ReportFilters struct {
	INN          string
	RiskLevel    RiskLevel
	ClientName   string // case-insensitive substring
	DateFrom     *time.Time
	DateTo       *time.Time
	MinRiskScore *int
	MaxRiskScore *int
	Limit        int
	Offset       int
}
