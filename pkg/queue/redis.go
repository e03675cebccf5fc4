package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/riskradar/riskradar/pkg/models"
)

// highPriorityThreshold splits the priority range: tasks at or above it are
// pushed to the draining end of the pending list.
const highPriorityThreshold = 6

// RedisBroker is the production broker: one Redis list per queue with
// per-consumer processing lists, a delivery-count hash, a claims hash for
// orphan detection, and a dead-letter list.
type RedisBroker struct {
	client        *redis.Client
	name          string
	maxDeliveries int
	log           *slog.Logger
}

// NewRedisBroker wraps an established Redis client for one named queue.
func NewRedisBroker(client *redis.Client, name string, maxDeliveries int) *RedisBroker {
	return &RedisBroker{
		client:        client,
		name:          name,
		maxDeliveries: maxDeliveries,
		log:           slog.With("component", "queue.redis", "queue", name),
	}
}

func (b *RedisBroker) pendingKey() string    { return "queue:" + b.name + ":pending" }
func (b *RedisBroker) idsKey() string        { return "queue:" + b.name + ":ids" }
func (b *RedisBroker) deliveriesKey() string { return "queue:" + b.name + ":deliveries" }
func (b *RedisBroker) claimsKey() string     { return "queue:" + b.name + ":claims" }
func (b *RedisBroker) errorsKey() string     { return "queue:" + b.name + ":errors" }
func (b *RedisBroker) dlqKey() string        { return "queue:" + b.name + ":dlq" }
func (b *RedisBroker) resultsChannel() string {
	return "queue:" + b.name + ":results"
}
func (b *RedisBroker) processingKey(consumer string) string {
	return "queue:" + b.name + ":processing:" + consumer
}
func (b *RedisBroker) resultKey(taskID string) string {
	return "queue:" + b.name + ":result:" + taskID
}
func (b *RedisBroker) statusKey(taskID string) string {
	return "queue:" + b.name + ":status:" + taskID
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) Enqueue(ctx context.Context, msg Message) error {
	added, err := b.client.SAdd(ctx, b.idsKey(), msg.ID).Result()
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", msg.ID, err)
	}
	if added == 0 {
		return ErrDuplicateTask
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	pipe := b.client.TxPipeline()
	// The pending list drains from the right; high-priority messages jump
	// the line by entering on that side.
	if msg.Priority >= highPriorityThreshold {
		pipe.RPush(ctx, b.pendingKey(), raw)
	} else {
		pipe.LPush(ctx, b.pendingKey(), raw)
	}
	pipe.Set(ctx, b.statusKey(msg.ID), string(models.TaskPending), statusTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue %s: %w", msg.ID, err)
	}
	b.log.Info("task enqueued", "task_id", msg.ID, "priority", msg.Priority)
	return nil
}

func (b *RedisBroker) Claim(ctx context.Context, consumerID string) (*Delivery, error) {
	for {
		raw, err := b.client.LMove(ctx, b.pendingKey(), b.processingKey(consumerID), "RIGHT", "LEFT").Result()
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoTasks
		}
		if err != nil {
			return nil, fmt.Errorf("claiming from %s: %w", b.name, err)
		}

		var msg Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			// Undecodable entries can never be processed; drop them.
			b.log.Error("dropping undecodable queue entry", "error", err)
			b.client.LRem(ctx, b.processingKey(consumerID), 1, raw)
			continue
		}

		attempt, err := b.client.HIncrBy(ctx, b.deliveriesKey(), msg.ID, 1).Result()
		if err != nil {
			return nil, fmt.Errorf("counting delivery of %s: %w", msg.ID, err)
		}
		if int(attempt) > b.maxDeliveries {
			if err := b.deadLetter(ctx, msg, raw, consumerID, int(attempt)-1); err != nil {
				return nil, err
			}
			continue
		}

		now := time.Now().UTC()
		record, err := json.Marshal(claimRecord{Consumer: consumerID, Raw: raw, ClaimedAt: now, BeatAt: now})
		if err != nil {
			return nil, err
		}
		pipe := b.client.TxPipeline()
		pipe.HSet(ctx, b.claimsKey(), msg.ID, record)
		pipe.Set(ctx, b.statusKey(msg.ID), string(models.TaskProcessing), statusTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("recording claim of %s: %w", msg.ID, err)
		}

		return &Delivery{Message: msg, Attempt: int(attempt), consumer: consumerID, raw: raw}, nil
	}
}

func (b *RedisBroker) Ack(ctx context.Context, d *Delivery) error {
	pipe := b.client.TxPipeline()
	pipe.LRem(ctx, b.processingKey(d.consumer), 1, d.raw)
	pipe.HDel(ctx, b.deliveriesKey(), d.ID)
	pipe.HDel(ctx, b.claimsKey(), d.ID)
	pipe.HDel(ctx, b.errorsKey(), d.ID)
	pipe.SRem(ctx, b.idsKey(), d.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("acking %s: %w", d.ID, err)
	}
	return nil
}

func (b *RedisBroker) Nack(ctx context.Context, d *Delivery, taskErr error) (bool, error) {
	if taskErr != nil {
		if err := b.client.HSet(ctx, b.errorsKey(), d.ID, taskErr.Error()).Err(); err != nil {
			b.log.Warn("recording task error failed", "task_id", d.ID, "error", err)
		}
	}

	if d.Attempt >= b.maxDeliveries {
		return false, b.deadLetter(ctx, d.Message, d.raw, d.consumer, d.Attempt)
	}

	pipe := b.client.TxPipeline()
	pipe.LRem(ctx, b.processingKey(d.consumer), 1, d.raw)
	pipe.LPush(ctx, b.pendingKey(), d.raw)
	pipe.HDel(ctx, b.claimsKey(), d.ID)
	pipe.Set(ctx, b.statusKey(d.ID), string(models.TaskPending), statusTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("requeueing %s: %w", d.ID, err)
	}
	b.log.Warn("task requeued after failure", "task_id", d.ID, "attempt", d.Attempt)
	return true, nil
}

// deadLetter moves a message to the DLQ. The LRem guard makes placement
// exactly-once even when two paths race on the same delivery.
func (b *RedisBroker) deadLetter(ctx context.Context, msg Message, raw, consumer string, attempts int) error {
	removed, err := b.client.LRem(ctx, b.processingKey(consumer), 1, raw).Result()
	if err != nil {
		return fmt.Errorf("removing %s for dead-lettering: %w", msg.ID, err)
	}
	if removed == 0 {
		return nil // another path already handled this entry
	}

	lastError, _ := b.client.HGet(ctx, b.errorsKey(), msg.ID).Result()
	entry, err := json.Marshal(DeadLetter{
		Message:   msg,
		Attempts:  attempts,
		LastError: lastError,
		FailedAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	pipe := b.client.TxPipeline()
	pipe.LPush(ctx, b.dlqKey(), entry)
	pipe.HDel(ctx, b.deliveriesKey(), msg.ID)
	pipe.HDel(ctx, b.claimsKey(), msg.ID)
	pipe.HDel(ctx, b.errorsKey(), msg.ID)
	pipe.SRem(ctx, b.idsKey(), msg.ID)
	pipe.Set(ctx, b.statusKey(msg.ID), string(models.TaskFailed), statusTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dead-lettering %s: %w", msg.ID, err)
	}
	b.log.Error("task dead-lettered", "task_id", msg.ID, "attempts", attempts, "last_error", lastError)
	return nil
}

func (b *RedisBroker) Heartbeat(ctx context.Context, d *Delivery) error {
	raw, err := b.client.HGet(ctx, b.claimsKey(), d.ID).Result()
	if errors.Is(err, redis.Nil) {
		return nil // already acked or recovered
	}
	if err != nil {
		return err
	}
	var record claimRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return err
	}
	record.BeatAt = time.Now().UTC()
	updated, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return b.client.HSet(ctx, b.claimsKey(), d.ID, updated).Err()
}

func (b *RedisBroker) RecoverOrphans(ctx context.Context, olderThan time.Duration) (int, error) {
	claims, err := b.client.HGetAll(ctx, b.claimsKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("scanning claims: %w", err)
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	recovered := 0
	for taskID, raw := range claims {
		var record claimRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			b.client.HDel(ctx, b.claimsKey(), taskID)
			continue
		}
		if record.BeatAt.After(cutoff) {
			continue
		}

		removed, err := b.client.LRem(ctx, b.processingKey(record.Consumer), 1, record.Raw).Result()
		if err != nil {
			return recovered, fmt.Errorf("recovering %s: %w", taskID, err)
		}
		if removed == 0 {
			b.client.HDel(ctx, b.claimsKey(), taskID)
			continue
		}
		pipe := b.client.TxPipeline()
		pipe.LPush(ctx, b.pendingKey(), record.Raw)
		pipe.HDel(ctx, b.claimsKey(), taskID)
		pipe.Set(ctx, b.statusKey(taskID), string(models.TaskPending), statusTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			return recovered, fmt.Errorf("requeueing orphan %s: %w", taskID, err)
		}
		recovered++
		b.log.Warn("orphaned task requeued",
			"task_id", taskID, "consumer", record.Consumer, "last_beat", record.BeatAt)
	}
	return recovered, nil
}

func (b *RedisBroker) Depth(ctx context.Context) (int, int, error) {
	pending, err := b.client.LLen(ctx, b.pendingKey()).Result()
	if err != nil {
		return 0, 0, err
	}
	dead, err := b.client.LLen(ctx, b.dlqKey()).Result()
	if err != nil {
		return 0, 0, err
	}
	return int(pending), int(dead), nil
}

func (b *RedisBroker) DeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	raws, err := b.client.LRange(ctx, b.dlqKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	letters := make([]DeadLetter, 0, len(raws))
	for _, raw := range raws {
		var letter DeadLetter
		if err := json.Unmarshal([]byte(raw), &letter); err != nil {
			continue
		}
		letters = append(letters, letter)
	}
	return letters, nil
}

func (b *RedisBroker) SetResult(ctx context.Context, result *models.TaskResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	pipe := b.client.TxPipeline()
	pipe.Set(ctx, b.resultKey(result.TaskID), raw, resultTTL)
	pipe.Set(ctx, b.statusKey(result.TaskID), string(result.Status), statusTTL)
	pipe.Publish(ctx, b.resultsChannel(), raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing result of %s: %w", result.TaskID, err)
	}
	return nil
}

func (b *RedisBroker) GetResult(ctx context.Context, taskID string) (*models.TaskResult, bool, error) {
	raw, err := b.client.Get(ctx, b.resultKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var result models.TaskResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false, err
	}
	return &result, true, nil
}

func (b *RedisBroker) Status(ctx context.Context, taskID string) (models.TaskStatus, bool, error) {
	raw, err := b.client.Get(ctx, b.statusKey(taskID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return models.TaskStatus(raw), true, nil
}
