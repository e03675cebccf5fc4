package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskradar/riskradar/pkg/models"
)

const testMaxDeliveries = 3

// Both broker implementations must satisfy the same contract, so every
// test runs against both.
func forEachBroker(t *testing.T, test func(t *testing.T, broker Broker)) {
	t.Helper()
	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		test(t, NewRedisBroker(client, AnalysisQueue, testMaxDeliveries))
	})
	t.Run("memory", func(t *testing.T) {
		test(t, NewMemoryBroker(AnalysisQueue, testMaxDeliveries))
	})
}

func analysisMessage(t *testing.T, taskID string, priority int) Message {
	t.Helper()
	msg, err := NewAnalysisMessage(&models.AnalysisTask{
		TaskID:     taskID,
		ClientName: "ООО Ромашка",
		INN:        "7707083893",
		Priority:   priority,
		CreatedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
	return msg
}

func TestEnqueueIsIdempotentByTaskID(t *testing.T) {
	forEachBroker(t, func(t *testing.T, broker Broker) {
		ctx := context.Background()
		msg := analysisMessage(t, "task-1", 1)

		require.NoError(t, broker.Enqueue(ctx, msg))
		err := broker.Enqueue(ctx, msg)
		require.ErrorIs(t, err, ErrDuplicateTask)

		pending, _, err := broker.Depth(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, pending)

		status, ok, err := broker.Status(ctx, "task-1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, models.TaskPending, status)
	})
}

func TestClaimDrainsFIFOWithPriorityJump(t *testing.T) {
	forEachBroker(t, func(t *testing.T, broker Broker) {
		ctx := context.Background()
		require.NoError(t, broker.Enqueue(ctx, analysisMessage(t, "normal-1", 1)))
		require.NoError(t, broker.Enqueue(ctx, analysisMessage(t, "normal-2", 1)))
		require.NoError(t, broker.Enqueue(ctx, analysisMessage(t, "urgent", 9)))

		first, err := broker.Claim(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "urgent", first.ID)
		assert.Equal(t, 1, first.Attempt)

		second, err := broker.Claim(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "normal-1", second.ID)

		third, err := broker.Claim(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "normal-2", third.ID)

		_, err = broker.Claim(ctx, "c1")
		require.ErrorIs(t, err, ErrNoTasks)
	})
}

func TestAckAllowsReEnqueue(t *testing.T) {
	forEachBroker(t, func(t *testing.T, broker Broker) {
		ctx := context.Background()
		require.NoError(t, broker.Enqueue(ctx, analysisMessage(t, "task-1", 1)))

		d, err := broker.Claim(ctx, "c1")
		require.NoError(t, err)
		require.NoError(t, broker.Ack(ctx, d))

		// The ID is free again after ack.
		require.NoError(t, broker.Enqueue(ctx, analysisMessage(t, "task-1", 1)))
	})
}

func TestNackRequeuesUntilDeliveryBudgetThenDeadLetters(t *testing.T) {
	forEachBroker(t, func(t *testing.T, broker Broker) {
		ctx := context.Background()
		require.NoError(t, broker.Enqueue(ctx, analysisMessage(t, "flaky", 1)))

		for attempt := 1; attempt < testMaxDeliveries; attempt++ {
			d, err := broker.Claim(ctx, "c1")
			require.NoError(t, err)
			assert.Equal(t, attempt, d.Attempt)
			requeued, err := broker.Nack(ctx, d, errors.New("upstream down"))
			require.NoError(t, err)
			assert.True(t, requeued)
		}

		d, err := broker.Claim(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, testMaxDeliveries, d.Attempt)
		requeued, err := broker.Nack(ctx, d, errors.New("upstream still down"))
		require.NoError(t, err)
		assert.False(t, requeued)

		// Exactly one dead letter, pending is empty.
		pending, dead, err := broker.Depth(ctx)
		require.NoError(t, err)
		assert.Zero(t, pending)
		assert.Equal(t, 1, dead)

		letters, err := broker.DeadLetters(ctx, 10)
		require.NoError(t, err)
		require.Len(t, letters, 1)
		assert.Equal(t, "flaky", letters[0].Message.ID)
		assert.Equal(t, testMaxDeliveries, letters[0].Attempts)
		assert.Contains(t, letters[0].LastError, "upstream")

		status, ok, err := broker.Status(ctx, "flaky")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, models.TaskFailed, status)
	})
}

func TestOrphanedClaimIsRecovered(t *testing.T) {
	forEachBroker(t, func(t *testing.T, broker Broker) {
		ctx := context.Background()
		require.NoError(t, broker.Enqueue(ctx, analysisMessage(t, "orphan", 1)))

		_, err := broker.Claim(ctx, "dead-consumer")
		require.NoError(t, err)

		// A fresh claim still beats the zero threshold; nothing to do.
		recovered, err := broker.RecoverOrphans(ctx, time.Minute)
		require.NoError(t, err)
		assert.Zero(t, recovered)

		// Threshold zero treats every claim as stale.
		recovered, err = broker.RecoverOrphans(ctx, -time.Second)
		require.NoError(t, err)
		assert.Equal(t, 1, recovered)

		d, err := broker.Claim(ctx, "new-consumer")
		require.NoError(t, err)
		assert.Equal(t, "orphan", d.ID)
		assert.Equal(t, 2, d.Attempt)
	})
}

func TestHeartbeatKeepsClaimAlive(t *testing.T) {
	forEachBroker(t, func(t *testing.T, broker Broker) {
		ctx := context.Background()
		require.NoError(t, broker.Enqueue(ctx, analysisMessage(t, "beating", 1)))

		d, err := broker.Claim(ctx, "c1")
		require.NoError(t, err)
		require.NoError(t, broker.Heartbeat(ctx, d))

		recovered, err := broker.RecoverOrphans(ctx, time.Minute)
		require.NoError(t, err)
		assert.Zero(t, recovered)
	})
}

func TestResultLifecycle(t *testing.T) {
	forEachBroker(t, func(t *testing.T, broker Broker) {
		ctx := context.Background()

		_, ok, err := broker.GetResult(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)

		result := &models.TaskResult{
			TaskID:      "task-1",
			Status:      models.TaskCompleted,
			Report:      &models.ClientAnalysisReport{Summary: "итог"},
			CompletedAt: time.Now().UTC(),
		}
		require.NoError(t, broker.SetResult(ctx, result))

		got, ok, err := broker.GetResult(ctx, "task-1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, models.TaskCompleted, got.Status)
		assert.Equal(t, "итог", got.Report.Summary)

		status, ok, err := broker.Status(ctx, "task-1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, models.TaskCompleted, status)
	})
}

func TestStalePendingEntryDeadLettersOnClaim(t *testing.T) {
	// A message requeued by orphan recovery after its budget was spent
	// must be routed to the DLQ by the next claim, not processed again.
	forEachBroker(t, func(t *testing.T, broker Broker) {
		ctx := context.Background()
		require.NoError(t, broker.Enqueue(ctx, analysisMessage(t, "spent", 1)))

		for i := 0; i < testMaxDeliveries; i++ {
			d, err := broker.Claim(ctx, fmt.Sprintf("c%d", i))
			require.NoError(t, err)
			recovered, err := broker.RecoverOrphans(ctx, -time.Second)
			require.NoError(t, err)
			require.Equal(t, 1, recovered, "claim %d of %s", i, d.ID)
		}

		_, err := broker.Claim(ctx, "final")
		require.ErrorIs(t, err, ErrNoTasks)

		_, dead, err := broker.Depth(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, dead)
	})
}
