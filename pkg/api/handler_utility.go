package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/riskradar/riskradar/pkg/errkind"
	"github.com/riskradar/riskradar/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

const deepProbeTimeout = 5 * time.Second

// healthHandler handles GET /api/v1/utility/health.
// Shallow mode checks only this process's own components; ?deep=true adds
// real probes against storage and every configured provider. Deep probes
// never mark the service unhealthy — a broken upstream is a degraded
// report, not a reason for the orchestrator to restart us.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if s.deps.Store.Backend() == "memory" {
		status = healthStatusDegraded
		checks["storage"] = HealthCheck{Status: healthStatusDegraded, Message: "running on in-memory storage"}
	} else {
		checks["storage"] = HealthCheck{Status: healthStatusHealthy}
	}

	if s.deps.Pool != nil {
		poolHealth := s.deps.Pool.Health(reqCtx)
		if poolHealth != nil && !poolHealth.Healthy {
			if status == healthStatusHealthy {
				status = healthStatusDegraded
			}
			checks["worker_pool"] = HealthCheck{Status: healthStatusDegraded, Message: poolHealth.BrokerError}
		} else {
			checks["worker_pool"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	if c.QueryParam("deep") == "true" {
		if err := s.deps.Store.Ping(reqCtx); err != nil {
			status = healthStatusDegraded
			checks["storage_ping"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
		} else {
			checks["storage_ping"] = HealthCheck{Status: healthStatusHealthy}
		}

		for _, report := range s.deps.Providers.Healthcheck(reqCtx, deepProbeTimeout) {
			check := HealthCheck{Status: healthStatusHealthy}
			switch {
			case !report.Configured:
				check = HealthCheck{Status: healthStatusDegraded, Message: "not configured"}
			case !report.Healthy:
				check = HealthCheck{Status: healthStatusUnhealthy, Message: report.Error}
			}
			if check.Status != healthStatusHealthy && status == healthStatusHealthy {
				status = healthStatusDegraded
			}
			checks["provider_"+report.Source] = check
		}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	return c.JSON(httpStatus, &HealthResponse{
		Status:  status,
		Version: version.GitCommit,
		Checks:  checks,
	})
}

// metricsHandler handles GET /api/v1/utility/metrics.
func (s *Server) metricsHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Metrics.Stats())
}

// circuitBreakersHandler handles GET /api/v1/utility/circuit-breakers.
func (s *Server) circuitBreakersHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &BreakerStatesResponse{
		Breakers: s.deps.Outbound.BreakerStates(),
	})
}

// resetCircuitBreakerHandler handles POST /api/v1/utility/circuit-breakers/:service/reset (admin).
func (s *Server) resetCircuitBreakerHandler(c *echo.Context) error {
	service := c.Param("service")
	if !s.deps.Outbound.ResetBreaker(service) {
		return writeErrorKind(c, http.StatusNotFound, errkind.NotFound,
			"no circuit breaker for service "+service)
	}
	return c.JSON(http.StatusOK, map[string]string{"service": service, "status": "reset"})
}

// storageStatsHandler handles GET /api/v1/utility/stats/storage.
func (s *Server) storageStatsHandler(c *echo.Context) error {
	snap := s.deps.Store.StatsSnapshot()
	resp := &StorageStatsResponse{
		Backend:         snap.Backend,
		CacheHits:       snap.CacheHits,
		CacheMisses:     snap.CacheMisses,
		Sets:            snap.Sets,
		Deletes:         snap.Deletes,
		Evictions:       snap.Evictions,
		Failovers:       snap.Failovers,
		CompressedSaves: snap.CompressedSaves,
		BytesSaved:      snap.BytesSaved,
	}
	if total := snap.CacheHits + snap.CacheMisses; total > 0 {
		resp.HitRate = float64(snap.CacheHits) / float64(total)
	}
	if counts, err := s.deps.Store.SpaceCounts(c.Request().Context()); err == nil {
		resp.Spaces = counts
	}
	if s.deps.Pool != nil {
		if health := s.deps.Pool.Health(c.Request().Context()); health != nil {
			resp.QueueDepth = health.PendingDepth
			resp.DeadLetterDepth = health.DeadLetterDepth
		}
	}
	return c.JSON(http.StatusOK, resp)
}
