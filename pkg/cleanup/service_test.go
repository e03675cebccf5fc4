package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskradar/riskradar/pkg/models"
	"github.com/riskradar/riskradar/pkg/storage"
)

func TestServiceEvictsOnStart(t *testing.T) {
	store := storage.New(context.Background(), storage.Options{})
	ctx := context.Background()

	expired := &models.StoredReport{
		ReportID:   "old",
		ClientName: "Old Client",
		CreatedAt:  time.Now().Add(-48 * time.Hour),
		ExpiresAt:  time.Now().Add(-time.Hour),
		RiskLevel:  models.RiskLow,
	}
	require.NoError(t, store.SaveReport(ctx, expired))

	svc := NewService(store, time.Hour)
	svc.Start(ctx)
	defer svc.Stop()

	assert.Eventually(t, func() bool {
		_, err := store.GetReport(ctx, "old")
		return err != nil
	}, time.Second, 10*time.Millisecond)
}

func TestServiceStopIsIdempotent(t *testing.T) {
	svc := NewService(storage.New(context.Background(), storage.Options{}), time.Hour)
	svc.Stop() // never started

	svc.Start(context.Background())
	svc.Start(context.Background()) // second start is a no-op
	svc.Stop()
}
