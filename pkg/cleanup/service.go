// Package cleanup provides the background retention loop.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/riskradar/riskradar/pkg/storage"
)

// Service periodically evicts expired report entries and their index
// members. Cache keys expire natively; this keeps the report indexes and the
// in-memory fallback honest. Idempotent and safe to run from multiple pods.
type Service struct {
	store    *storage.Store
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(store *storage.Store, interval time.Duration) *Service {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Service{store: store, interval: interval}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started", "interval", s.interval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.evict(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.evict(ctx)
		}
	}
}

func (s *Service) evict(ctx context.Context) {
	count, err := s.store.EvictExpired(ctx, time.Now())
	if err != nil {
		slog.Error("Retention: eviction pass failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: evicted expired entries", "count", count)
	}
}
