package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/riskradar/riskradar/pkg/models"
	"github.com/riskradar/riskradar/pkg/storage"
)

// Listing bounds.
const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// ReportList is one page of stored reports plus the total match count.
type ReportList struct {
	Reports []models.StoredReport `json:"reports"`
	Total   int                   `json:"total"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
}

// ReportService reads and deletes stored reports.
type ReportService struct {
	store *storage.Store
	log   *slog.Logger
}

// NewReportService creates a new ReportService.
func NewReportService(store *storage.Store) *ReportService {
	if store == nil {
		panic("NewReportService: store must not be nil")
	}
	return &ReportService{store: store, log: slog.With("component", "services.reports")}
}

// List returns a filtered page of reports, newest first.
func (s *ReportService) List(ctx context.Context, filters models.ReportFilters) (*ReportList, error) {
	filters.Limit = clampLimit(filters.Limit)
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	if filters.MinRiskScore != nil && filters.MaxRiskScore != nil &&
		*filters.MinRiskScore > *filters.MaxRiskScore {
		return nil, NewValidationError("min_risk_score", "min_risk_score exceeds max_risk_score")
	}

	reports, total, err := s.store.ListReports(ctx, filters)
	if err != nil {
		return nil, err
	}
	if reports == nil {
		reports = []models.StoredReport{}
	}
	return &ReportList{
		Reports: reports,
		Total:   total,
		Limit:   filters.Limit,
		Offset:  filters.Offset,
	}, nil
}

// Get returns one report by ID.
func (s *ReportService) Get(ctx context.Context, reportID string) (*models.StoredReport, error) {
	if reportID == "" {
		return nil, NewValidationError("report_id", "report id is required")
	}
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return report, nil
}

// Delete removes one report by ID.
func (s *ReportService) Delete(ctx context.Context, reportID string) error {
	if reportID == "" {
		return NewValidationError("report_id", "report id is required")
	}
	if err := s.store.DeleteReport(ctx, reportID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.log.Info("report deleted", "report_id", reportID)
	return nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}
