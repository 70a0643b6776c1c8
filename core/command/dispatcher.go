// Package command runs remote vehicle commands on pooled worker tasks and
// reports each outcome through exactly one CommandCompleted event.
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/etr/core/backend"
	"github.com/kilianp07/etr/core/events"
	"github.com/kilianp07/etr/core/gate"
	"github.com/kilianp07/etr/core/logger"
	"github.com/kilianp07/etr/core/model"
	"github.com/kilianp07/etr/core/monitoring"
	"github.com/kilianp07/etr/internal/eventbus"
	"github.com/kilianp07/etr/internal/workerpool"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) { d.log = logger.OrNop(l) }
}

// WithIDGenerator replaces the correlation id source.
func WithIDGenerator(fn func() string) Option {
	return func(d *Dispatcher) {
		if fn != nil {
			d.newID = fn
		}
	}
}

// Dispatcher correlates commands with their completion events.
type Dispatcher struct {
	handle *gate.Shared[backend.Backend]
	bus    *eventbus.Bus
	pool   *workerpool.Pool
	log    logger.Logger
	newID  func() string
}

// New creates a dispatcher running its workers on pool.
func New(handle *gate.Shared[backend.Backend], bus *eventbus.Bus, pool *workerpool.Pool, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handle: handle,
		bus:    bus,
		pool:   pool,
		log:    logger.Nop{},
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send schedules command name with args and returns its correlation id
// without waiting. The outcome is only reported through CommandCompleted.
func (d *Dispatcher) Send(name string, args ...any) string {
	id := d.newID()
	d.log.Debugw("command queued", map[string]any{"command_id": id, "command": name})
	err := d.pool.Submit(func(ctx context.Context) {
		d.execute(ctx, id, name, args)
	})
	if err != nil {
		d.complete(events.CommandOutcome{ID: id, Name: name, Error: err.Error()}, 0)
	}
	return id
}

func (d *Dispatcher) execute(ctx context.Context, id, name string, args []any) {
	start := time.Now()
	var result model.Frame
	err := d.handle.Read(ctx, func(b backend.Backend) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = monitoring.CapturePanic("command", r)
			}
		}()
		result, err = b.Execute(ctx, name, args...)
		return err
	})
	// the gate is released before the outcome is published
	out := events.CommandOutcome{ID: id, Name: name}
	if err != nil {
		d.log.Warnf("command %s (%s) failed: %v", name, id, err)
		out.Error = errorMessage(err)
	} else {
		out.OK = true
		out.Result = result
	}
	d.complete(out, time.Since(start))
}

func (d *Dispatcher) complete(out events.CommandOutcome, took time.Duration) {
	outcome := "ok"
	if !out.OK {
		outcome = "failed"
	}
	c := collectors.Load()
	c.commandsTotal.WithLabelValues(out.Name, outcome).Inc()
	c.commandDuration.WithLabelValues(out.Name).Observe(took.Seconds())
	if err := d.bus.Raise(events.CommandCompleted, events.CommandCompletedArgs(out)...); err != nil {
		d.log.Errorf("raise %s for %s: %v", events.CommandCompleted, out.ID, err)
	}
}

func errorMessage(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fmt.Sprintf("%T", err)
}
