package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

type recordingObserver struct {
	queued   atomic.Int64
	started  atomic.Int64
	finished atomic.Int64
	panicked atomic.Int64
}

func (o *recordingObserver) TaskQueued(int)  { o.queued.Add(1) }
func (o *recordingObserver) TaskStarted(int) { o.started.Add(1) }
func (o *recordingObserver) TaskFinished(_ time.Duration, panicked bool) {
	o.finished.Add(1)
	if panicked {
		o.panicked.Add(1)
	}
}

func newStartedPool(t *testing.T, cfg Config) *Pool {
	t.Helper()
	p := New(cfg)
	p.Start()
	t.Cleanup(p.Stop)
	return p
}

// ============================================================================
// Pool Tests
// ============================================================================

func TestPoolRunsAllTasks(t *testing.T) {
	p := newStartedPool(t, Config{Workers: 4, QueueSize: 8})

	var count atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), func() {
			defer wg.Done()
			count.Add(1)
		}))
	}
	wg.Wait()

	assert.Equal(t, int64(100), count.Load())
}

func TestPoolBoundsConcurrency(t *testing.T) {
	const workers = 3
	const tasks = 20

	p := newStartedPool(t, Config{Workers: workers, QueueSize: tasks})

	var current, maxSeen atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < tasks; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), func() {
			defer wg.Done()
			n := current.Add(1)
			for {
				m := maxSeen.Load()
				if n <= m || maxSeen.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			current.Add(-1)
		}))
	}
	wg.Wait()

	assert.LessOrEqual(t, maxSeen.Load(), int64(workers))
	assert.LessOrEqual(t, p.Peak(), workers)
	assert.Equal(t, workers, p.Peak(), "all workers should have been busy at some point")
	assert.Equal(t, uint64(tasks), p.Completed())
}

func TestPoolFIFO(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 10})

	var mu sync.Mutex
	var order []int
	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, p.Submit(context.Background(), func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}

	p.Start()
	p.Stop()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestPoolRecoversPanics(t *testing.T) {
	obs := &recordingObserver{}
	p := newStartedPool(t, Config{Workers: 1, QueueSize: 4, Observer: obs})

	done := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func() { panic("boom") }))
	require.NoError(t, p.Submit(context.Background(), func() { close(done) }))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not survive a panicking task")
	}

	p.Stop()
	assert.Equal(t, uint64(1), p.Panics())
	assert.Equal(t, uint64(2), p.Completed())
	assert.Equal(t, int64(2), obs.queued.Load())
	assert.Equal(t, int64(2), obs.started.Load())
	assert.Equal(t, int64(2), obs.finished.Load())
	assert.Equal(t, int64(1), obs.panicked.Load())
}

func TestPoolSubmitBlocksWhenFull(t *testing.T) {
	p := newStartedPool(t, Config{Workers: 1, QueueSize: 1})

	release := make(chan struct{})
	running := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func() {
		close(running)
		<-release
	}))
	<-running
	require.NoError(t, p.Submit(context.Background(), func() {}))
	assert.Equal(t, 1, p.Queued())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

func TestPoolStop(t *testing.T) {
	t.Run("DrainsQueue", func(t *testing.T) {
		p := New(Config{Workers: 2, QueueSize: 16})
		p.Start()

		var count atomic.Int64
		for i := 0; i < 16; i++ {
			require.NoError(t, p.Submit(context.Background(), func() {
				time.Sleep(time.Millisecond)
				count.Add(1)
			}))
		}
		p.Stop()
		assert.Equal(t, int64(16), count.Load())
	})

	t.Run("SubmitAfterStop", func(t *testing.T) {
		p := New(Config{Workers: 1})
		p.Start()
		p.Stop()

		err := p.Submit(context.Background(), func() {})
		assert.ErrorIs(t, err, ErrPoolStopped)
	})

	t.Run("WakesBlockedSubmitters", func(t *testing.T) {
		p := New(Config{Workers: 1, QueueSize: 0})
		p.Start()

		release := make(chan struct{})
		running := make(chan struct{})
		require.NoError(t, p.Submit(context.Background(), func() {
			close(running)
			<-release
		}))
		<-running

		errCh := make(chan error, 1)
		go func() { errCh <- p.Submit(context.Background(), func() {}) }()

		stopped := make(chan struct{})
		go func() {
			p.Stop()
			close(stopped)
		}()

		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, ErrPoolStopped)
		case <-time.After(5 * time.Second):
			t.Fatal("blocked submitter was not woken by Stop")
		}

		close(release)
		<-stopped
	})

	t.Run("StopTwice", func(t *testing.T) {
		p := New(Config{Workers: 2})
		p.Start()
		p.Stop()
		p.Stop()
	})

	t.Run("StopWithoutStartRunsQueued", func(t *testing.T) {
		p := New(Config{Workers: 2, QueueSize: 2})
		ran := make(chan struct{}, 2)
		require.NoError(t, p.Submit(context.Background(), func() { ran <- struct{}{} }))
		p.Stop()
		assert.Len(t, ran, 1)
	})
}

func TestPoolDefaults(t *testing.T) {
	p := New(Config{})
	assert.Equal(t, DefaultWorkers, p.Workers())
	assert.Equal(t, 0, p.Running())
	p.Stop()

	assert.Error(t, New(Config{}).Submit(context.Background(), nil))
}
