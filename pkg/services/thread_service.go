package services

import (
	"context"
	"errors"

	"github.com/riskradar/riskradar/pkg/models"
	"github.com/riskradar/riskradar/pkg/storage"
)

// ThreadService reads persisted session threads.
type ThreadService struct {
	store *storage.Store
}

// NewThreadService creates a new ThreadService.
func NewThreadService(store *storage.Store) *ThreadService {
	if store == nil {
		panic("NewThreadService: store must not be nil")
	}
	return &ThreadService{store: store}
}

// List returns thread summaries, most recently updated first.
func (s *ThreadService) List(ctx context.Context, limit, offset int) ([]models.ThreadSummary, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}
	threads, err := s.store.ListThreads(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	if threads == nil {
		threads = []models.ThreadSummary{}
	}
	return threads, nil
}

// ListByINN returns the thread summaries recorded for one company, most
// recently updated first.
func (s *ThreadService) ListByINN(ctx context.Context, inn string, limit, offset int) ([]models.ThreadSummary, error) {
	if inn == "" {
		return nil, NewValidationError("inn", "inn is required")
	}
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}
	threads, err := s.store.ListThreadsByINN(ctx, inn, limit, offset)
	if err != nil {
		return nil, err
	}
	if threads == nil {
		threads = []models.ThreadSummary{}
	}
	return threads, nil
}

// History returns the full snapshot of one thread.
func (s *ThreadService) History(ctx context.Context, threadID string) (*models.ThreadRecord, error) {
	if threadID == "" {
		return nil, NewValidationError("thread_id", "thread id is required")
	}
	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return thread, nil
}
