package gate

import (
	"context"
	"sync"
	"time"

	"github.com/kilianp07/etr/core/logger"
)

// Gate combines a drainable reader counter with an exclusive-operation flag.
type Gate struct {
	mu      sync.Mutex
	readers *Counter
	// open is set while no exclusive operation is pending or running.
	open *Signal
	log  logger.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the gate logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Gate) { g.log = logger.OrNop(l) }
}

// New returns an open gate with no active readers.
func New(opts ...Option) *Gate {
	g := &Gate{
		readers: NewCounter(),
		open:    NewSignal(true),
		log:     logger.Nop{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Acquire enters the gate as a reader. It blocks while an exclusive operation
// is pending or running. The returned release function must be called once
// the guarded work is done; calling it more than once is harmless.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	start := time.Now()
	var hold func()
	for {
		if err := g.open.Wait(ctx); err != nil {
			return nil, err
		}
		g.mu.Lock()
		if g.open.IsSet() {
			hold = g.readers.Hold()
			g.mu.Unlock()
			break
		}
		g.mu.Unlock()
	}
	c := collectors.Load()
	c.readerWait.Observe(time.Since(start).Seconds())
	c.activeReaders.Inc()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.activeReaders.Dec()
			hold()
		})
	}, nil
}

// Read runs fn as a reader. The reader slot is released on every exit path,
// including panics.
func (g *Gate) Read(ctx context.Context, fn func() error) error {
	release, err := g.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// Lock claims the exclusive flag, then waits for active readers to drain. On
// success the returned unlock function reopens the gate.
func (g *Gate) Lock(ctx context.Context) (unlock func(), err error) {
	start := time.Now()
	for {
		if err := g.open.Wait(ctx); err != nil {
			return nil, err
		}
		g.mu.Lock()
		if g.open.IsSet() {
			g.open.Clear()
			g.mu.Unlock()
			break
		}
		g.mu.Unlock()
	}
	g.log.Debugf("exclusive claimed, draining %d readers", g.readers.Value())
	if err := g.readers.Zero().Wait(ctx); err != nil {
		g.open.Set()
		return nil, err
	}
	collectors.Load().exclusiveWait.Observe(time.Since(start).Seconds())
	var once sync.Once
	return func() { once.Do(g.open.Set) }, nil
}

// Exclusive runs fn once every reader has drained, with new readers held off.
func (g *Gate) Exclusive(ctx context.Context, fn func() error) error {
	unlock, err := g.Lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// Readers returns the number of active readers.
func (g *Gate) Readers() int { return g.readers.Value() }

// ExclusiveInProgress reports whether an exclusive operation holds the gate.
func (g *Gate) ExclusiveInProgress() bool { return !g.open.IsSet() }

// Drained returns the signal set while no reader is active.
func (g *Gate) Drained() *Signal { return g.readers.Zero() }
