// Package workerpool provides a bounded worker pool for fire-and-forget tasks.
// Submissions never block: a full queue rejects the task.
package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrQueueFull = errors.New("task queue is full")
	ErrStopped   = errors.New("pool is shutting down")
)

// Task is a unit of work. ctx is the context passed to Submit.
type Task func(ctx context.Context)

// Config holds worker pool configuration
type Config struct {
	// Workers is the number of concurrent workers
	Workers int
	// QueueSize is the size of the task queue
	QueueSize int
	// GracefulShutdownTimeout is the timeout for graceful shutdown
	GracefulShutdownTimeout time.Duration
}

// DefaultConfig returns defaults sized for evaluator calls from a few
// hundred open fields
func DefaultConfig() Config {
	return Config{
		Workers:                 16,
		QueueSize:               1024,
		GracefulShutdownTimeout: 10 * time.Second,
	}
}

type job struct {
	ctx  context.Context
	task Task
}

// Pool runs submitted tasks on a fixed set of workers
type Pool struct {
	config Config
	logger *zap.Logger

	jobs chan job
	wg   sync.WaitGroup

	mu      sync.RWMutex
	stopped bool

	tasksSubmitted int64
	tasksCompleted int64
	tasksRejected  int64
	tasksPanicked  int64
	activeWorkers  int64
	queueDepth     int64
}

// New creates a new worker pool
func New(cfg Config, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.GracefulShutdownTimeout <= 0 {
		cfg.GracefulShutdownTimeout = def.GracefulShutdownTimeout
	}

	return &Pool{
		config: cfg,
		logger: logger,
		jobs:   make(chan job, cfg.QueueSize),
	}
}

// Start launches all workers
func (p *Pool) Start() {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize))
}

// Submit queues task. It returns ErrQueueFull or ErrStopped instead of blocking.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		atomic.AddInt64(&p.tasksRejected, 1)
		return ErrStopped
	}

	select {
	case p.jobs <- job{ctx: ctx, task: task}:
		atomic.AddInt64(&p.tasksSubmitted, 1)
		atomic.AddInt64(&p.queueDepth, 1)
		return nil
	default:
		atomic.AddInt64(&p.tasksRejected, 1)
		return ErrQueueFull
	}
}

// Stop drains queued tasks and waits for workers up to the shutdown timeout
func (p *Pool) Stop() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	p.logger.Info("stopping worker pool")

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
		return nil
	case <-time.After(p.config.GracefulShutdownTimeout):
		p.logger.Warn("worker pool shutdown timed out")
		return errors.New("worker pool shutdown timed out")
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	atomic.AddInt64(&p.activeWorkers, 1)
	defer atomic.AddInt64(&p.activeWorkers, -1)

	for j := range p.jobs {
		atomic.AddInt64(&p.queueDepth, -1)
		p.run(id, j)
	}
}

func (p *Pool) run(workerID int, j job) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&p.tasksPanicked, 1)
			p.logger.Error("task panicked",
				zap.Int("worker_id", workerID),
				zap.Any("panic", r))
		}
	}()

	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	j.task(ctx)
	atomic.AddInt64(&p.tasksCompleted, 1)
}

// Stats holds pool statistics
type Stats struct {
	TasksSubmitted int64 `json:"tasks_submitted"`
	TasksCompleted int64 `json:"tasks_completed"`
	TasksRejected  int64 `json:"tasks_rejected"`
	TasksPanicked  int64 `json:"tasks_panicked"`
	ActiveWorkers  int64 `json:"active_workers"`
	QueueDepth     int64 `json:"queue_depth"`
	QueueCapacity  int   `json:"queue_capacity"`
	Workers        int   `json:"workers"`
}

// Stats returns current pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		TasksSubmitted: atomic.LoadInt64(&p.tasksSubmitted),
		TasksCompleted: atomic.LoadInt64(&p.tasksCompleted),
		TasksRejected:  atomic.LoadInt64(&p.tasksRejected),
		TasksPanicked:  atomic.LoadInt64(&p.tasksPanicked),
		ActiveWorkers:  atomic.LoadInt64(&p.activeWorkers),
		QueueDepth:     atomic.LoadInt64(&p.queueDepth),
		QueueCapacity:  p.config.QueueSize,
		Workers:        p.config.Workers,
	}
}

// IsHealthy returns true if the pool accepts work and the queue isn't backing up
func (p *Pool) IsHealthy() bool {
	p.mu.RLock()
	stopped := p.stopped
	p.mu.RUnlock()
	if stopped {
		return false
	}
	stats := p.Stats()
	return float64(stats.QueueDepth)/float64(stats.QueueCapacity) < 0.9
}
