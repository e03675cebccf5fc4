package providers

import (
	"context"
	"time"
)

// Set bundles all provider clients for dependency wiring.
type Set struct {
	Registry    *RegistryClient
	Court       *CourtClient
	Analytics   *AnalyticsClient
	SearchBasic *SearchBasicClient
	SearchDeep  *SearchDeepClient
}

// NewSet constructs every provider client from shared dependencies.
func NewSet(deps Deps) *Set {
	return &Set{
		Registry:    NewRegistryClient(deps),
		Court:       NewCourtClient(deps),
		Analytics:   NewAnalyticsClient(deps),
		SearchBasic: NewSearchBasicClient(deps),
		SearchDeep:  NewSearchDeepClient(deps),
	}
}

// All returns the clients in a stable order.
func (s *Set) All() []Client {
	return []Client{s.Registry, s.Court, s.Analytics, s.SearchBasic, s.SearchDeep}
}

// HealthReport is the deep-health outcome for one provider.
type HealthReport struct {
	Source     string `json:"source"`
	Configured bool   `json:"configured"`
	Healthy    bool   `json:"healthy"`
	Error      string `json:"error,omitempty"`
}

// Healthcheck probes every configured provider with the given per-probe
// timeout. Unconfigured providers are reported but not probed.
func (s *Set) Healthcheck(ctx context.Context, timeout time.Duration) []HealthReport {
	reports := make([]HealthReport, 0, 5)
	for _, client := range s.All() {
		report := HealthReport{Source: client.Name(), Configured: client.Configured()}
		if report.Configured {
			if err := client.Healthcheck(ctx, timeout); err != nil {
				report.Error = err.Error()
			} else {
				report.Healthy = true
			}
		}
		reports = append(reports, report)
	}
	return reports
}
