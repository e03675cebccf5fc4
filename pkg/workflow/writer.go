package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/riskradar/riskradar/pkg/errkind"
	"github.com/riskradar/riskradar/pkg/models"
	"github.com/riskradar/riskradar/pkg/storage"
)

// Writer persists the session outcome: the report under its retention
// window and the session thread as a durable snapshot.
type Writer struct {
	store *storage.Store
	log   *slog.Logger
}

// NewWriter builds a writer.
func NewWriter(store *storage.Store) *Writer {
	return &Writer{store: store, log: slog.With("component", "workflow.writer")}
}

// Persist stores the finished report and the final thread snapshot,
// returning the new report ID. The report write is the commit point; a
// failed thread write afterwards is logged but does not fail the session.
func (w *Writer) Persist(ctx context.Context, state *models.WorkflowState) (string, error) {
	if state.Report == nil {
		return "", errkind.New(errkind.InternalError, "persisting a session without a report")
	}

	now := time.Now().UTC()
	stored := &models.StoredReport{
		ReportID:   uuid.NewString(),
		SessionID:  state.SessionID,
		INN:        state.INN,
		ClientName: state.ClientName,
		ReportData: *state.Report,
		CreatedAt:  now,
		ExpiresAt:  now.Add(models.ReportTTL),
		RiskLevel:  state.Report.RiskAssessment.Level,
		RiskScore:  state.Report.RiskAssessment.Score,
	}
	if err := w.store.SaveReport(ctx, stored); err != nil {
		return "", errkind.Wrap(errkind.StorageUnavailable, err, "saving report")
	}

	if err := w.Snapshot(ctx, state); err != nil {
		w.log.Warn("thread snapshot failed after report commit",
			"session_id", state.SessionID, "report_id", stored.ReportID, "error", err)
	}
	w.log.Info("report persisted",
		"session_id", state.SessionID, "report_id", stored.ReportID,
		"risk_score", stored.RiskScore, "risk_level", stored.RiskLevel)
	return stored.ReportID, nil
}

// Snapshot upserts the thread record for the session's current state.
// Called on stage transitions so interrupted sessions stay inspectable.
func (w *Writer) Snapshot(ctx context.Context, state *models.WorkflowState) error {
	record := &models.ThreadRecord{
		ThreadID:   state.SessionID,
		ClientName: state.ClientName,
		INN:        state.INN,
		ThreadData: *state,
		CreatedAt:  state.StartedAt,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := w.store.SaveThread(ctx, record); err != nil {
		return errkind.Wrap(errkind.StorageUnavailable, err, "saving thread snapshot")
	}
	return nil
}
