package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeDefaults(t *testing.T) {
	cfg, err := Initialize(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, 300*time.Second, cfg.WorkflowTimeout)
	assert.Equal(t, 3, cfg.MaxFeedbackRetries)
	assert.Equal(t, 1024, cfg.CompressionThreshold)
	assert.Equal(t, 10, cfg.Queue.WorkerCount)
	assert.Equal(t, 3, cfg.Queue.MaxDeliveries)
}

func TestInitializeEnvOverrides(t *testing.T) {
	t.Setenv("RISKRADAR_PORT", "9100")
	t.Setenv("QUEUE_WORKER_COUNT", "4")
	t.Setenv("WORKFLOW_TIMEOUT", "120")
	t.Setenv("QUEUE_TASK_TIMEOUT", "90s")

	cfg, err := Initialize(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 4, cfg.Queue.WorkerCount)
	assert.Equal(t, 120*time.Second, cfg.WorkflowTimeout)
	assert.Equal(t, 90*time.Second, cfg.Queue.TaskTimeout)
}

func TestInitializeRejectsBadPort(t *testing.T) {
	t.Setenv("RISKRADAR_PORT", "70000")

	_, err := Initialize(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestInitializeIgnoresMalformedInt(t *testing.T) {
	t.Setenv("QUEUE_WORKER_COUNT", "lots")

	cfg, err := Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Queue.WorkerCount)
}

func TestServiceProfiles(t *testing.T) {
	s := DefaultServicesConfig()

	assert.Equal(t, 15*time.Second, s.Profile("registry").Timeout)
	assert.Equal(t, 7200*time.Second, s.Profile("registry").CacheTTL)
	assert.Equal(t, 20*time.Second, s.Profile("court").Timeout)
	assert.Equal(t, 9600*time.Second, s.Profile("court").CacheTTL)
	assert.Equal(t, 30*time.Second, s.Profile("analytics").Timeout)
	assert.Equal(t, 45*time.Second, s.Profile("search_basic").Timeout)
	assert.Equal(t, 60*time.Second, s.Profile("search_deep").Timeout)
	assert.Equal(t, 300*time.Second, s.Profile("search_deep").CacheTTL)

	// Unknown services fall back to the generic profile.
	assert.Equal(t, 60*time.Second, s.Profile("unknown").Timeout)
	assert.Equal(t, 3600*time.Second, s.Profile("unknown").CacheTTL)
}

func TestRiskConfigScale(t *testing.T) {
	r := DefaultRiskConfig()
	assert.Equal(t, 105, r.RawScale())
	assert.Equal(t, 25, r.MediumThreshold)
	assert.Equal(t, 50, r.HighThreshold)
	assert.Equal(t, 75, r.CriticalThreshold)
}
