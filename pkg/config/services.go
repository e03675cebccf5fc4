package config

import "time"

// ServiceProfile is the per-upstream timeout and cache policy.
type ServiceProfile struct {
	// Timeout bounds a single HTTP attempt against the upstream.
	Timeout time.Duration

	// CacheTTL is how long a successful response stays in the cache space.
	CacheTTL time.Duration
}

// ServicesConfig maps each upstream service to its profile. Timeouts differ
// because court and deep-search backends are an order of magnitude slower
// than the registry.
type ServicesConfig struct {
	Registry    ServiceProfile
	Court       ServiceProfile
	Analytics   ServiceProfile
	SearchBasic ServiceProfile
	SearchDeep  ServiceProfile

	// GenericCacheTTL applies to cached payloads with no service profile.
	GenericCacheTTL time.Duration

	// ReportTTL is the retention for persisted reports.
	ReportTTL time.Duration
}

// DefaultServicesConfig returns the built-in service profiles.
func DefaultServicesConfig() *ServicesConfig {
	return &ServicesConfig{
		Registry:        ServiceProfile{Timeout: 15 * time.Second, CacheTTL: 7200 * time.Second},
		Court:           ServiceProfile{Timeout: 20 * time.Second, CacheTTL: 9600 * time.Second},
		Analytics:       ServiceProfile{Timeout: 30 * time.Second, CacheTTL: 3600 * time.Second},
		SearchBasic:     ServiceProfile{Timeout: 45 * time.Second, CacheTTL: 300 * time.Second},
		SearchDeep:      ServiceProfile{Timeout: 60 * time.Second, CacheTTL: 300 * time.Second},
		GenericCacheTTL: 3600 * time.Second,
		ReportTTL:       30 * 24 * time.Hour,
	}
}

// Profile returns the profile for a known service name, or the generic
// fallback (60s timeout, generic TTL) for anything else.
func (s *ServicesConfig) Profile(service string) ServiceProfile {
	switch service {
	case "registry":
		return s.Registry
	case "court":
		return s.Court
	case "analytics":
		return s.Analytics
	case "search_basic":
		return s.SearchBasic
	case "search_deep":
		return s.SearchDeep
	default:
		return ServiceProfile{Timeout: 60 * time.Second, CacheTTL: s.GenericCacheTTL}
	}
}
