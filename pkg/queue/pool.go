package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/riskradar/riskradar/pkg/config"
)

// Executor processes one claimed message. Implementations decode the
// payload for their queue and return the terminal outcome.
type Executor interface {
	Execute(ctx context.Context, d *Delivery) ExecutionResult
}

// Pool manages the polling workers for one queue.
type Pool struct {
	consumerID string
	queue      string
	broker     Broker
	cfg        *config.QueueConfig
	executor   Executor
	log        *slog.Logger

	workers  []*Worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu          sync.RWMutex
	activeTasks map[string]context.CancelFunc
	started     bool

	orphanMu         sync.Mutex
	lastOrphanScan   time.Time
	orphansRecovered int
}

// NewPool builds a worker pool. consumerID identifies this process replica
// in claims and processing-list names.
func NewPool(consumerID, queue string, broker Broker, cfg *config.QueueConfig, executor Executor) *Pool {
	return &Pool{
		consumerID:  consumerID,
		queue:       queue,
		broker:      broker,
		cfg:         cfg,
		executor:    executor,
		log:         slog.With("component", "queue.pool", "queue", queue, "consumer_id", consumerID),
		workers:     make([]*Worker, 0, cfg.WorkerCount),
		stopCh:      make(chan struct{}),
		activeTasks: make(map[string]context.CancelFunc),
	}
}

// Start recovers orphans left by a previous run, then spawns the workers
// and the periodic orphan scan. Safe to call twice; the second call is a
// no-op.
func (p *Pool) Start(ctx context.Context) error {
	if p.started {
		p.log.Warn("worker pool already started, ignoring duplicate Start call")
		return nil
	}
	p.started = true

	if recovered, err := p.broker.RecoverOrphans(ctx, p.cfg.OrphanThreshold); err != nil {
		p.log.Warn("startup orphan recovery failed", "error", err)
	} else if recovered > 0 {
		p.log.Info("recovered orphaned tasks on startup", "count", recovered)
	}

	p.log.Info("starting worker pool", "worker_count", p.cfg.WorkerCount)
	for i := 0; i < p.cfg.WorkerCount; i++ {
		worker := newWorker(fmt.Sprintf("%s-worker-%d", p.consumerID, i), p)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runOrphanScan(ctx)
	}()
	return nil
}

// Stop signals the workers and waits up to the graceful-shutdown budget
// for in-flight tasks. Tasks still running after the budget are abandoned;
// orphan recovery requeues them on the next start.
func (p *Pool) Stop() {
	p.log.Info("stopping worker pool", "active_tasks", p.ActiveCount())
	p.stopOnce.Do(func() { close(p.stopCh) })

	done := make(chan struct{})
	go func() {
		for _, worker := range p.workers {
			worker.Wait()
		}
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info("worker pool stopped gracefully")
	case <-time.After(p.cfg.GracefulShutdownTimeout):
		abandoned := p.activeTaskIDs()
		p.log.Warn("graceful shutdown budget exceeded, abandoning tasks for redelivery",
			"task_ids", abandoned)
		for _, taskID := range abandoned {
			p.CancelTask(taskID)
		}
	}
}

// CancelTask cancels a task running on this replica.
func (p *Pool) CancelTask(taskID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cancel, ok := p.activeTasks[taskID]; ok {
		cancel()
		return true
	}
	return false
}

// ActiveCount reports tasks currently being processed by this replica.
func (p *Pool) ActiveCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.activeTasks)
}

// Health reports the pool and broker state.
func (p *Pool) Health(ctx context.Context) *PoolHealth {
	health := &PoolHealth{
		Queue:         p.queue,
		ConsumerID:    p.consumerID,
		TotalWorkers:  len(p.workers),
		ActiveTasks:   p.ActiveCount(),
		MaxConcurrent: p.cfg.MaxConcurrentTasks,
		Workers:       make([]WorkerHealth, 0, len(p.workers)),
	}
	for _, worker := range p.workers {
		stats := worker.Health()
		health.Workers = append(health.Workers, stats)
		if stats.Status == WorkerWorking {
			health.ActiveWorkers++
		}
	}

	pending, dead, err := p.broker.Depth(ctx)
	if err != nil {
		health.BrokerError = err.Error()
	} else {
		health.BrokerReachable = true
		health.PendingDepth = pending
		health.DeadLetterDepth = dead
	}

	p.orphanMu.Lock()
	health.LastOrphanScan = p.lastOrphanScan
	health.OrphansRecovered = p.orphansRecovered
	p.orphanMu.Unlock()

	health.Healthy = len(p.workers) > 0 && health.BrokerReachable &&
		health.ActiveTasks <= p.cfg.MaxConcurrentTasks
	return health
}

func (p *Pool) runOrphanScan(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.OrphanDetectionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			recovered, err := p.broker.RecoverOrphans(ctx, p.cfg.OrphanThreshold)
			p.orphanMu.Lock()
			p.lastOrphanScan = time.Now().UTC()
			p.orphansRecovered += recovered
			p.orphanMu.Unlock()
			if err != nil {
				p.log.Warn("orphan scan failed", "error", err)
			} else if recovered > 0 {
				p.log.Info("orphan scan requeued tasks", "count", recovered)
			}
		}
	}
}

func (p *Pool) registerTask(taskID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeTasks[taskID] = cancel
}

func (p *Pool) unregisterTask(taskID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeTasks, taskID)
}

func (p *Pool) activeTaskIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.activeTasks))
	for id := range p.activeTasks {
		ids = append(ids, id)
	}
	return ids
}

// atCapacity is a best-effort local check; racy with concurrent workers
// but bounded by WorkerCount and mitigated by poll jitter.
func (p *Pool) atCapacity() bool {
	return p.ActiveCount() >= p.cfg.MaxConcurrentTasks
}
