// Package providers contains the typed clients for the upstream data
// sources: company registry, arbitration courts, financial analytics, and
// the two web-search backends. Every client goes through the resilient HTTP
// core and consults the cache space before making a network call.
package providers

import (
	"context"
	"time"

	"github.com/riskradar/riskradar/pkg/config"
	"github.com/riskradar/riskradar/pkg/httpcore"
	"github.com/riskradar/riskradar/pkg/storage"
)

// Source labels, used in cache keys, envelopes, and logs.
const (
	SourceRegistry    = "registry"
	SourceCourt       = "court"
	SourceAnalytics   = "analytics"
	SourceSearchBasic = "search_basic"
	SourceSearchDeep  = "search_deep"
)

// Client is the narrow surface the collector and health checks need from
// every provider.
type Client interface {
	Name() string
	Configured() bool
	// Healthcheck issues a minimal real request against the provider.
	Healthcheck(ctx context.Context, timeout time.Duration) error
}

// Deps bundles what every provider client is built from.
type Deps struct {
	HTTP      *httpcore.Client
	Store     *storage.Store
	Services  *config.ServicesConfig
	Providers *config.ProvidersConfig
}

// RegistryCompany is the registry lookup result.
type RegistryCompany struct {
	Name      string         `json:"name"`
	INN       string         `json:"inn"`
	OGRN      string         `json:"ogrn,omitempty"`
	KPP       string         `json:"kpp,omitempty"`
	Status    string         `json:"status"` // ACTIVE, LIQUIDATING, LIQUIDATED, BANKRUPT
	Address   string         `json:"address,omitempty"`
	OKVED     string         `json:"okved,omitempty"`
	Manager   string         `json:"manager,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
	FetchedAt time.Time      `json:"fetched_at"`
}

// CourtCase is one arbitration case from the court provider.
type CourtCase struct {
	Number   string  `json:"number"`
	Category string  `json:"category,omitempty"`
	CaseName string  `json:"case_name,omitempty"`
	Role     string  `json:"role,omitempty"` // defendant / plaintiff
	Date     string  `json:"date,omitempty"`
	Amount   float64 `json:"amount,omitempty"`
}

// CourtData is the full court lookup result.
type CourtData struct {
	INN       string      `json:"inn"`
	Cases     []CourtCase `json:"cases"`
	Truncated bool        `json:"truncated,omitempty"` // pagination hit its cap
}

// AnalyticsData carries the financial indicators.
type AnalyticsData struct {
	INN            string   `json:"inn"`
	LiquidityRatio *float64 `json:"liquidity_ratio,omitempty"`
	DebtRatio      *float64 `json:"debt_ratio,omitempty"`
	CreditRating   string   `json:"credit_rating,omitempty"`
	Revenue        *float64 `json:"revenue,omitempty"`
	NetProfit      *float64 `json:"net_profit,omitempty"`
}

// SearchResult is one web-search answer.
type SearchResult struct {
	Query     string   `json:"query"`
	Content   string   `json:"content"`
	Citations []string `json:"citations,omitempty"`
}
