package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/riskradar/riskradar/pkg/models"
)

// MemoryBroker mirrors the Redis broker semantics for single-process
// deployments without Redis. Results and statuses never expire here; the
// process lifetime bounds them.
type MemoryBroker struct {
	name          string
	maxDeliveries int
	log           *slog.Logger

	mu         sync.Mutex
	pending    []string // raw messages, drained from the tail
	ids        map[string]struct{}
	deliveries map[string]int
	claims     map[string]claimRecord
	errors     map[string]string
	dlq        []DeadLetter
	results    map[string]*models.TaskResult
	statuses   map[string]models.TaskStatus
}

// NewMemoryBroker builds an empty in-memory broker.
func NewMemoryBroker(name string, maxDeliveries int) *MemoryBroker {
	return &MemoryBroker{
		name:          name,
		maxDeliveries: maxDeliveries,
		log:           slog.With("component", "queue.memory", "queue", name),
		ids:           make(map[string]struct{}),
		deliveries:    make(map[string]int),
		claims:        make(map[string]claimRecord),
		errors:        make(map[string]string),
		results:       make(map[string]*models.TaskResult),
		statuses:      make(map[string]models.TaskStatus),
	}
}

func (b *MemoryBroker) Ping(context.Context) error { return nil }

func (b *MemoryBroker) Enqueue(_ context.Context, msg Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, dup := b.ids[msg.ID]; dup {
		return ErrDuplicateTask
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	b.ids[msg.ID] = struct{}{}
	if msg.Priority >= highPriorityThreshold {
		b.pending = append(b.pending, string(raw))
	} else {
		b.pending = append([]string{string(raw)}, b.pending...)
	}
	b.statuses[msg.ID] = models.TaskPending
	return nil
}

func (b *MemoryBroker) Claim(_ context.Context, consumerID string) (*Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if len(b.pending) == 0 {
			return nil, ErrNoTasks
		}
		raw := b.pending[len(b.pending)-1]
		b.pending = b.pending[:len(b.pending)-1]

		var msg Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			b.log.Error("dropping undecodable queue entry", "error", err)
			continue
		}

		b.deliveries[msg.ID]++
		attempt := b.deliveries[msg.ID]
		if attempt > b.maxDeliveries {
			b.deadLetterLocked(msg, attempt-1)
			continue
		}

		now := time.Now().UTC()
		b.claims[msg.ID] = claimRecord{Consumer: consumerID, Raw: raw, ClaimedAt: now, BeatAt: now}
		b.statuses[msg.ID] = models.TaskProcessing
		return &Delivery{Message: msg, Attempt: attempt, consumer: consumerID, raw: raw}, nil
	}
}

func (b *MemoryBroker) Ack(_ context.Context, d *Delivery) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.claims, d.ID)
	delete(b.deliveries, d.ID)
	delete(b.errors, d.ID)
	delete(b.ids, d.ID)
	return nil
}

func (b *MemoryBroker) Nack(_ context.Context, d *Delivery, taskErr error) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if taskErr != nil {
		b.errors[d.ID] = taskErr.Error()
	}
	delete(b.claims, d.ID)

	if d.Attempt >= b.maxDeliveries {
		b.deadLetterLocked(d.Message, d.Attempt)
		return false, nil
	}
	b.pending = append([]string{d.raw}, b.pending...)
	b.statuses[d.ID] = models.TaskPending
	return true, nil
}

// deadLetterLocked assumes b.mu is held.
func (b *MemoryBroker) deadLetterLocked(msg Message, attempts int) {
	b.dlq = append([]DeadLetter{{
		Message:   msg,
		Attempts:  attempts,
		LastError: b.errors[msg.ID],
		FailedAt:  time.Now().UTC(),
	}}, b.dlq...)
	delete(b.deliveries, msg.ID)
	delete(b.claims, msg.ID)
	delete(b.errors, msg.ID)
	delete(b.ids, msg.ID)
	b.statuses[msg.ID] = models.TaskFailed
	b.log.Error("task dead-lettered", "task_id", msg.ID, "attempts", attempts)
}

func (b *MemoryBroker) Heartbeat(_ context.Context, d *Delivery) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if record, ok := b.claims[d.ID]; ok {
		record.BeatAt = time.Now().UTC()
		b.claims[d.ID] = record
	}
	return nil
}

func (b *MemoryBroker) RecoverOrphans(_ context.Context, olderThan time.Duration) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	recovered := 0
	for taskID, record := range b.claims {
		if record.BeatAt.After(cutoff) {
			continue
		}
		b.pending = append([]string{record.Raw}, b.pending...)
		delete(b.claims, taskID)
		b.statuses[taskID] = models.TaskPending
		recovered++
	}
	return recovered, nil
}

func (b *MemoryBroker) Depth(context.Context) (int, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending), len(b.dlq), nil
}

func (b *MemoryBroker) DeadLetters(_ context.Context, limit int) ([]DeadLetter, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > len(b.dlq) {
		limit = len(b.dlq)
	}
	out := make([]DeadLetter, limit)
	copy(out, b.dlq[:limit])
	return out, nil
}

func (b *MemoryBroker) SetResult(_ context.Context, result *models.TaskResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results[result.TaskID] = result
	b.statuses[result.TaskID] = result.Status
	return nil
}

func (b *MemoryBroker) GetResult(_ context.Context, taskID string) (*models.TaskResult, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	result, ok := b.results[taskID]
	return result, ok, nil
}

func (b *MemoryBroker) Status(_ context.Context, taskID string) (models.TaskStatus, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	status, ok := b.statuses[taskID]
	return status, ok, nil
}
