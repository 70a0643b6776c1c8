// Package workerpool runs fire-and-forget tasks on a bounded number of
// goroutines owned by the caller.
package workerpool

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/kilianp07/etr/core/logger"
	"github.com/kilianp07/etr/core/monitoring"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("worker pool closed")

// Pool bounds the number of concurrently running tasks. Submit never blocks:
// tasks beyond the limit wait for a slot on their own goroutine.
type Pool struct {
	sem *semaphore.Weighted
	ctx context.Context
	log logger.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates a pool running at most size tasks at once. A size below one is
// treated as one.
func New(size int, log logger.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		ctx:    ctx,
		cancel: cancel,
		log:    logger.OrNop(log),
	}
}

// Context returns the context handed to tasks. It is cancelled once Close
// returns.
func (p *Pool) Context() context.Context { return p.ctx }

// Submit schedules task. The task receives the pool context. Panics are
// recovered and reported.
func (p *Pool) Submit(task func(ctx context.Context)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(p.ctx, 1); err == nil {
			defer p.sem.Release(1)
		}
		// a task that never got a slot still runs so it can observe the
		// cancelled context and report its own outcome
		p.run(task)
	}()
	return nil
}

func (p *Pool) run(task func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			err := monitoring.CapturePanic("workerpool", r)
			p.log.Errorf("task panicked: %v", err)
		}
	}()
	task(p.ctx)
}

// Close stops accepting tasks and waits for the submitted ones until ctx is
// done. When ctx expires first the pool context is cancelled.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
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
