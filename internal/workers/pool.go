package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Task is a unit of background work. The context is detached from any
// inbound request.
type Task func(ctx context.Context)

var ErrPoolStopped = errors.New("worker pool stopped")

// Pool runs tasks on a fixed number of goroutines fed by a bounded queue.
type Pool struct {
	size  int
	tasks chan Task
	wg    sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
	cancel  context.CancelFunc

	submitted atomic.Int64
	completed atomic.Int64
	dropped   atomic.Int64
	panicked  atomic.Int64
}

// PoolStats is a point-in-time snapshot of the pool counters.
type PoolStats struct {
	Size      int   `json:"size"`
	Queued    int   `json:"queued"`
	Capacity  int   `json:"capacity"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Dropped   int64 `json:"dropped"`
	Panicked  int64 `json:"panicked"`
}

func NewPool(size, queueSize int) *Pool {
	if size <= 0 {
		size = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		size:   size,
		tasks:  make(chan Task, queueSize),
		cancel: cancel,
	}

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker(ctx)
	}
	return p
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(ctx, task)
	}
}

func (p *Pool) run(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			log.Error().Interface("panic", r).Msg("background task panicked")
		}
		p.completed.Add(1)
	}()
	task(ctx)
}

// Submit enqueues a task without blocking. It returns false when the queue is
// full or the pool has been stopped.
func (p *Pool) Submit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		p.dropped.Add(1)
		return false
	}

	select {
	case p.tasks <- task:
		p.submitted.Add(1)
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

// Stop closes the queue and waits for queued and running tasks to finish or
// for ctx to end, whichever comes first. Tasks still running when ctx ends see
// their context cancelled.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrPoolStopped
	}
	p.stopped = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Size:      p.size,
		Queued:    len(p.tasks),
		Capacity:  cap(p.tasks),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Dropped:   p.dropped.Load(),
		Panicked:  p.panicked.Load(),
	}
}
