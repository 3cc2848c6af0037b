package executor

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
)

// Pool is an Executor backed by a fixed set of worker goroutines reading from
// an unbounded FIFO. Post never blocks.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   *queue.Queue
	timers  map[*poolTimer]struct{}
	stopped bool
	wg      sync.WaitGroup

	panicHandler PanicHandler

	posted    atomic.Uint64
	completed atomic.Uint64
	panicked  atomic.Uint64
}

// PoolStats is a point-in-time view of a Pool.
type PoolStats struct {
	Posted    uint64 `json:"posted"`
	Completed uint64 `json:"completed"`
	Panicked  uint64 `json:"panicked"`
	Queued    int    `json:"queued"`
	Timers    int    `json:"timers"`
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPanicHandler sets the handler invoked when a task panics. Without one,
// panics are recovered and counted.
func WithPanicHandler(h PanicHandler) PoolOption {
	return func(p *Pool) {
		p.panicHandler = h
	}
}

// NewPool starts workers goroutines. A non-positive count starts one.
func NewPool(workers int, opts ...PoolOption) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{
		tasks:  queue.New(),
		timers: make(map[*poolTimer]struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	for _, opt := range opts {
		opt(p)
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Post queues task for execution.
func (p *Pool) Post(task func()) error {
	if task == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrStopped
	}
	p.tasks.Add(task)
	p.posted.Add(1)
	p.cond.Signal()
	return nil
}

// PostAfter queues task once delay has elapsed.
func (p *Pool) PostAfter(delay time.Duration, task func()) (Timer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil, ErrStopped
	}
	t := &poolTimer{pool: p}
	p.timers[t] = struct{}{}
	t.timer = time.AfterFunc(delay, func() {
		p.mu.Lock()
		delete(p.timers, t)
		p.mu.Unlock()
		_ = p.Post(task)
	})
	return t, nil
}

// Stop rejects new work, cancels pending timers and waits for the workers to
// finish the tasks already queued.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		for t := range p.timers {
			t.timer.Stop()
		}
		clear(p.timers)
		p.cond.Broadcast()
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns the pool counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	queued, timers := p.tasks.Length(), len(p.timers)
	p.mu.Unlock()

	return PoolStats{
		Posted:    p.posted.Load(),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
		Queued:    queued,
		Timers:    timers,
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for p.tasks.Length() == 0 && !p.stopped {
			p.cond.Wait()
		}
		if p.tasks.Length() == 0 {
			p.mu.Unlock()
			return
		}
		task := p.tasks.Remove().(func())
		p.mu.Unlock()

		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			if p.panicHandler != nil {
				p.panicHandler(r, debug.Stack())
			}
		}
		p.completed.Add(1)
	}()
	task()
}

type poolTimer struct {
	pool  *Pool
	timer *time.Timer
}

func (t *poolTimer) Stop() bool {
	if !t.timer.Stop() {
		return false
	}
	t.pool.mu.Lock()
	delete(t.pool.timers, t)
	t.pool.mu.Unlock()
	return true
}
