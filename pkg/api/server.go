// Package api exposes the REST surface and the SSE stream. Handlers are
// thin: bind, validate, call a service, map the error. Every error body is
// {kind, message, request_id}.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/riskradar/riskradar/pkg/config"
	"github.com/riskradar/riskradar/pkg/httpcore"
	"github.com/riskradar/riskradar/pkg/providers"
	"github.com/riskradar/riskradar/pkg/queue"
	"github.com/riskradar/riskradar/pkg/services"
	"github.com/riskradar/riskradar/pkg/storage"
	"github.com/riskradar/riskradar/pkg/workflow"
)

// Deps bundles everything the server serves from.
type Deps struct {
	Store     *storage.Store
	Bus       *workflow.Bus
	Analysis  *services.AnalysisService
	Reports   *services.ReportService
	Threads   *services.ThreadService
	Tasks     *services.TaskService
	Providers *providers.Set
	Outbound  *httpcore.Client
	Metrics   *httpcore.Metrics
	Pool      *queue.Pool
}

// Server is the HTTP API server.
type Server struct {
	cfg  *config.Config
	deps Deps

	echo       *echo.Echo
	httpServer *http.Server
	limiters   *rateLimiters
	log        *slog.Logger

	shuttingDown atomic.Bool
	shutdownCh   chan struct{}
}

// NewServer builds the server and registers all routes.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:        cfg,
		deps:       deps,
		echo:       echo.New(),
		limiters:   newRateLimiters(cfg.RateLimit),
		log:        slog.With("component", "api"),
		shutdownCh: make(chan struct{}),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	e := s.echo
	e.Use(requestID())
	e.Use(securityHeaders())
	e.Use(s.limiters.global())

	v1 := e.Group("/api/v1")

	agent := v1.Group("/agent")
	agent.POST("/analyze-client", s.analyzeClientHandler, s.limiters.route(classAnalyze))
	agent.POST("/analyze-client/async", s.analyzeAsyncHandler, s.limiters.route(classAnalyze))
	agent.GET("/task/:task_id", s.taskStatusHandler, s.limiters.route(classSearch))
	agent.GET("/threads", s.listThreadsHandler, s.limiters.route(classSearch))
	agent.GET("/thread_history/:thread_id", s.threadHistoryHandler, s.limiters.route(classSearch))
	agent.DELETE("/analyze/:session_id", s.cancelSessionHandler, s.limiters.route(classSearch))
	agent.POST("/feedback", s.feedbackHandler, s.limiters.route(classSearch))

	v1.GET("/reports", s.listReportsHandler, s.limiters.route(classSearch))
	v1.GET("/reports/:report_id", s.getReportHandler, s.limiters.route(classSearch))
	v1.DELETE("/reports/:report_id", s.deleteReportHandler,
		s.limiters.route(classAdmin), s.adminAuth())

	util := v1.Group("/utility")
	util.GET("/health", s.healthHandler)
	util.GET("/metrics", s.metricsHandler, s.limiters.route(classAdmin))
	util.GET("/circuit-breakers", s.circuitBreakersHandler, s.limiters.route(classAdmin))
	util.POST("/circuit-breakers/:service/reset", s.resetCircuitBreakerHandler,
		s.limiters.route(classAdmin), s.adminAuth())
	util.GET("/stats/storage", s.storageStatsHandler, s.limiters.route(classAdmin))
}

// Handler returns the root handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown or a listener error.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("HTTP server listening", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting connections and drains in-flight requests.
// Active SSE streams receive a best-effort ServerShuttingDown error event.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shuttingDown.CompareAndSwap(false, true) {
		close(s.shutdownCh)
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
