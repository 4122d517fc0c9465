// Package pool provides a fixed-size worker pool with a bounded FIFO queue.
//
// At most Workers tasks run at the same time. Tasks submitted while every
// worker is busy wait in the queue in submission order; once the queue is
// full, Submit blocks until space frees up. Tasks are never dropped.
package pool

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/fileshover/internal/logger"
)

// ErrPoolStopped is returned by Submit once Stop has been called.
var ErrPoolStopped = errors.New("worker pool stopped")

// Default sizing.
const (
	DefaultWorkers   = 10
	DefaultQueueSize = 128
)

// Task is one unit of work. It runs to completion on a single worker.
type Task func()

// Observer receives pool events, typically to feed metrics. Implementations
// must be safe for concurrent use and must not block.
type Observer interface {
	// TaskQueued is called after a task entered the queue.
	TaskQueued(depth int)

	// TaskStarted is called when a worker picks a task up.
	TaskStarted(running int)

	// TaskFinished is called after a task returned or panicked.
	TaskFinished(duration time.Duration, panicked bool)
}

// Config sizes a pool.
type Config struct {
	// Workers is the number of worker goroutines. Zero means DefaultWorkers.
	Workers int

	// QueueSize is the capacity of the pending task queue. Zero means an
	// unbuffered queue: Submit waits for an idle worker.
	QueueSize int

	// Observer is optional.
	Observer Observer
}

// Pool runs tasks on a fixed set of worker goroutines.
//
// Thread Safety:
// Submit, Stop and the counters are safe for concurrent use.
type Pool struct {
	workers  int
	observer Observer

	tasks    chan Task
	quit     chan struct{}
	quitOnce sync.Once

	mu      sync.RWMutex
	started bool
	stopped bool
	wg      sync.WaitGroup

	running   atomic.Int64
	peak      atomic.Int64
	completed atomic.Uint64
	panics    atomic.Uint64
}

// New creates a pool. Call Start before submitting.
func New(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}

	return &Pool{
		workers:  cfg.Workers,
		observer: cfg.Observer,
		tasks:    make(chan Task, cfg.QueueSize),
		quit:     make(chan struct{}),
	}
}

// Start launches the worker goroutines. Calling it more than once is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started || p.stopped {
		return
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logger.Debug("Worker pool started: workers=%d queue=%d", p.workers, cap(p.tasks))
}

// Submit queues task, blocking while the queue is full.
//
// Returns:
//   - nil once the task is queued
//   - ErrPoolStopped if the pool is stopping or stopped
//   - ctx.Err() if ctx ends before the task could be queued
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if task == nil {
		return errors.New("nil task")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.tasks <- task:
		if p.observer != nil {
			p.observer.TaskQueued(len(p.tasks))
		}
		return nil
	case <-p.quit:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new tasks, lets the workers drain the queue and waits for
// them to exit. Running tasks are not interrupted.
func (p *Pool) Stop() {
	p.mu.RLock()
	stopping := p.stopped
	p.mu.RUnlock()
	if stopping {
		p.wg.Wait()
		return
	}

	// Submitters blocked on a full queue hold the read lock; wake them first.
	p.closeQuit()

	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.tasks)
		if !p.started {
			// Nobody will drain the queue; run what was accepted.
			p.started = true
			p.wg.Add(1)
			go p.worker(0)
		}
	}
	p.mu.Unlock()

	p.wg.Wait()
	logger.Debug("Worker pool stopped: completed=%d panics=%d peak=%d",
		p.completed.Load(), p.panics.Load(), p.peak.Load())
}

func (p *Pool) closeQuit() {
	p.quitOnce.Do(func() { close(p.quit) })
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for task := range p.tasks {
		p.run(id, task)
	}
}

// run executes one task, recovering any panic so the worker survives.
func (p *Pool) run(id int, task Task) {
	n := p.running.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if p.observer != nil {
		p.observer.TaskStarted(int(n))
	}

	start := time.Now()
	panicked := true
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			logger.Error("Panic in worker %d: %v\n%s", id, r, debug.Stack())
		}
		p.running.Add(-1)
		p.completed.Add(1)
		if p.observer != nil {
			p.observer.TaskFinished(time.Since(start), panicked)
		}
	}()

	task()
	panicked = false
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int { return p.workers }

// Running returns the number of tasks executing right now.
func (p *Pool) Running() int { return int(p.running.Load()) }

// Queued returns the number of tasks waiting for a worker.
func (p *Pool) Queued() int { return len(p.tasks) }

// Peak returns the highest number of tasks that ever ran at once.
func (p *Pool) Peak() int { return int(p.peak.Load()) }

// Completed returns the number of tasks that have finished, including the
// ones that panicked.
func (p *Pool) Completed() uint64 { return p.completed.Load() }

// Panics returns the number of tasks that panicked.
func (p *Pool) Panics() uint64 { return p.panics.Load() }
