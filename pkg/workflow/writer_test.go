package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskradar/riskradar/pkg/errkind"
	"github.com/riskradar/riskradar/pkg/models"
	"github.com/riskradar/riskradar/pkg/storage"
)

func TestPersistStoresReportAndThread(t *testing.T) {
	store := storage.New(context.Background(), storage.Options{})
	writer := NewWriter(store)

	state := analysisState()
	state.Stage = models.StagePersisting
	state.StartedAt = time.Now().UTC().Add(-time.Minute)
	state.Report = &models.ClientAnalysisReport{
		Metadata:       models.ReportMetadata{ClientName: state.ClientName, INN: state.INN},
		RiskAssessment: models.RiskAssessment{Score: 38, Level: models.RiskMedium},
		Summary:        "итог",
	}

	reportID, err := writer.Persist(context.Background(), state)
	require.NoError(t, err)
	require.NotEmpty(t, reportID)

	stored, err := store.GetReport(context.Background(), reportID)
	require.NoError(t, err)
	assert.Equal(t, 38, stored.RiskScore)
	assert.Equal(t, models.RiskMedium, stored.RiskLevel)
	assert.Equal(t, state.INN, stored.INN)
	assert.WithinDuration(t, stored.CreatedAt.Add(models.ReportTTL), stored.ExpiresAt, time.Second)

	thread, err := store.GetThread(context.Background(), state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, state.ClientName, thread.ClientName)
	assert.Equal(t, models.StagePersisting, thread.ThreadData.Stage)
}

func TestPersistWithoutReportFails(t *testing.T) {
	store := storage.New(context.Background(), storage.Options{})
	writer := NewWriter(store)

	_, err := writer.Persist(context.Background(), analysisState())
	require.Error(t, err)
	assert.Equal(t, errkind.InternalError, errkind.KindOf(err))
}
