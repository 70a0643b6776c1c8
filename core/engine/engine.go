// Package engine composes the event bus, access gate, polling loop, command
// dispatcher and credential coordinator around one shared backend.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/etr/core/backend"
	"github.com/kilianp07/etr/core/command"
	"github.com/kilianp07/etr/core/credentials"
	"github.com/kilianp07/etr/core/events"
	"github.com/kilianp07/etr/core/gate"
	"github.com/kilianp07/etr/core/logger"
	"github.com/kilianp07/etr/core/poller"
	"github.com/kilianp07/etr/internal/eventbus"
	"github.com/kilianp07/etr/internal/workerpool"
)

// Version of the engine.
const Version = "1.0.0"

const DefaultWorkers = 8

// Options configures an Engine.
type Options struct {
	PollRate          time.Duration
	Workers           int
	DetailParallelism int
	// Strict propagates the first handler failure to the raiser instead of
	// logging it.
	Strict bool
	Logger logger.Logger
}

// Engine is the composition root. One bus and one gate are shared by every
// component for the engine's lifetime.
type Engine struct {
	bus    *eventbus.Bus
	handle *gate.Shared[backend.Backend]
	pool   *workerpool.Pool
	loop   *poller.Loop
	cmds   *command.Dispatcher
	creds  *credentials.Coordinator
	log    logger.Logger
}

// New builds an engine around b.
func New(b backend.Backend, opts Options) (*Engine, error) {
	if b == nil {
		return nil, errors.New("engine: nil backend")
	}
	log := logger.OrNop(opts.Logger)
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	bus := eventbus.New(events.All(), eventbus.WithStrict(opts.Strict), eventbus.WithLogger(log))
	handle := gate.NewShared(gate.New(gate.WithLogger(log)), b)
	pool := workerpool.New(workers, log)

	e := &Engine{
		bus:    bus,
		handle: handle,
		pool:   pool,
		log:    log,
		loop: poller.New(handle, bus,
			poller.WithRate(opts.PollRate),
			poller.WithParallelism(opts.DetailParallelism),
			poller.WithLogger(log),
		),
		cmds:  command.New(handle, bus, pool, command.WithLogger(log)),
		creds: credentials.New(handle, bus, pool, credentials.WithLogger(log)),
	}
	return e, nil
}

// PollStart starts the polling loop. See poller.Loop.Start.
func (e *Engine) PollStart() error { return e.loop.Start() }

// PollStop requests the polling loop to stop.
func (e *Engine) PollStop() error { return e.loop.Stop() }

// PollState reports the polling loop state.
func (e *Engine) PollState() poller.State { return e.loop.State() }

// WaitPoll blocks until the polling loop task has exited.
func (e *Engine) WaitPoll(ctx context.Context) error { return e.loop.Wait(ctx) }

// SendCommand dispatches a command and returns its correlation id.
func (e *Engine) SendCommand(name string, args ...any) string {
	return e.cmds.Send(name, args...)
}

// LoadCredentials validates and asynchronously installs a credential.
func (e *Engine) LoadCredentials(user, password, token string) (string, error) {
	return e.creds.LoadCredentials(user, password, token)
}

// SwitchBackend replaces the backend once readers have drained and returns
// the replaced one.
func (e *Engine) SwitchBackend(ctx context.Context, b backend.Backend, isDemo bool) (backend.Backend, error) {
	return e.creds.SwitchBackend(ctx, b, isDemo)
}

// Backend returns the installed backend.
func (e *Engine) Backend() backend.Backend { return e.handle.Peek() }

// ResetCredential clears the current credential.
func (e *Engine) ResetCredential(ctx context.Context) error {
	return e.creds.ResetCredential(ctx)
}

// CurrentToken returns the current credential.
func (e *Engine) CurrentToken() string { return e.creds.CurrentToken() }

// EnableDemoMode asks the owner to switch to the demo backend.
func (e *Engine) EnableDemoMode() error { return e.bus.Raise(events.RequestDemoApi) }

// EnableRealMode asks the owner to switch to the real backend.
func (e *Engine) EnableRealMode() error { return e.bus.Raise(events.RequestRealApi) }

// Version returns the engine version.
func (e *Engine) Version() string { return Version }

// Register adds h for name.
func (e *Engine) Register(name eventbus.Name, h eventbus.Handler) error {
	return e.bus.Register(name, h)
}

// Unregister removes h for name.
func (e *Engine) Unregister(name eventbus.Name, h eventbus.Handler) error {
	return e.bus.Unregister(name, h)
}

// Bus exposes the event bus.
func (e *Engine) Bus() *eventbus.Bus { return e.bus }

// Close stops polling, waits for the loop task and drains the worker pool.
// Commands sent afterwards still complete, with a failure.
func (e *Engine) Close(ctx context.Context) error {
	if e.loop.State() != poller.Stopped {
		if err := e.loop.Stop(); err != nil {
			e.log.Warnf("stop poller: %v", err)
		}
	}
	var errs []error
	if err := e.loop.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("wait poller: %w", err))
	}
	if err := e.pool.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close workers: %w", err))
	}
	return errors.Join(errs...)
}
