// Package jobs runs background compile passes on a fixed set of workers.
package jobs

import (
	"context"
	"errors"
	"sync"

	"github.com/specialistvlad/slotjit/internal/ctxlog"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("job pool is closed")

// Job is one unit of background work. ctx is cancelled when the pool closes.
type Job func(ctx context.Context)

// Pool is a worker pool with an unbounded FIFO queue.
type Pool struct {
	cancel context.CancelFunc
	group  *errgroup.Group

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Job
	running int
	closed  bool
}

// New starts workers goroutines. The pool's jobs inherit ctx's values, the
// logger in particular.
func New(ctx context.Context, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	p := &Pool{cancel: cancel, group: g}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < workers; i++ {
		workerID := i
		g.Go(func() error {
			p.worker(gctx, workerID)
			return nil
		})
	}
	return p
}

func (p *Pool) worker(ctx context.Context, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			logger.Debug("Worker finished.", "workerID", workerID)
			return
		}
		job := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.running++
		p.mu.Unlock()

		job(ctx)

		p.mu.Lock()
		p.running--
		p.cond.Broadcast()
		p.mu.Unlock()
	}
}

// Submit queues job.
func (p *Pool) Submit(job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.queue = append(p.queue, job)
	p.cond.Broadcast()
	return nil
}

// Idle reports whether no job is queued or running.
func (p *Pool) Idle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) == 0 && p.running == 0
}

// WaitIdle blocks until the pool is idle or ctx is done.
func (p *Pool) WaitIdle(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) != 0 || p.running != 0 {
		if p.closed {
			return ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		p.cond.Wait()
	}
	return nil
}

// Close drops queued jobs, cancels running ones and waits for the workers to
// exit. It returns the number of dropped jobs.
func (p *Pool) Close() int {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0
	}
	p.closed = true
	dropped := len(p.queue)
	p.queue = nil
	p.cond.Broadcast()
	p.mu.Unlock()

	p.cancel()
	_ = p.group.Wait()
	return dropped
}
