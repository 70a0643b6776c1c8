package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/etr/core/backend"
	"github.com/kilianp07/etr/core/events"
	"github.com/kilianp07/etr/core/gate"
	"github.com/kilianp07/etr/core/logger"
	"github.com/kilianp07/etr/core/model"
	"github.com/kilianp07/etr/core/monitoring"
	"github.com/kilianp07/etr/internal/eventbus"
)

const (
	DefaultRate        = 3 * time.Second
	DefaultParallelism = 4
)

// Option configures a Loop.
type Option func(*Loop)

// WithRate sets the delay between two ticks.
func WithRate(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.rate = d
		}
	}
}

// WithParallelism bounds the concurrent detail fetches of a tick.
func WithParallelism(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.parallelism = n
		}
	}
}

// WithLogger sets the loop logger.
func WithLogger(log logger.Logger) Option {
	return func(l *Loop) { l.log = logger.OrNop(log) }
}

// Loop periodically polls the shared backend. At most one loop task runs per
// Loop at any time.
type Loop struct {
	handle      *gate.Shared[backend.Backend]
	bus         *eventbus.Bus
	log         logger.Logger
	rate        time.Duration
	parallelism int

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped loop.
func New(handle *gate.Shared[backend.Backend], bus *eventbus.Bus, opts ...Option) *Loop {
	done := make(chan struct{})
	close(done)
	l := &Loop{
		handle:      handle,
		bus:         bus,
		log:         logger.Nop{},
		rate:        DefaultRate,
		parallelism: DefaultParallelism,
		done:        done,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Rate returns the delay between ticks.
func (l *Loop) Rate() time.Duration { return l.rate }

// Start launches the loop task. It is a no-op unless the loop is stopped.
// Without a credential on the current backend CredentialsRequired is raised
// and the loop stays stopped. The returned error only reports a strict-mode
// handler failure.
func (l *Loop) Start() error {
	l.mu.Lock()
	if l.state != Stopped {
		l.mu.Unlock()
		l.log.Debugf("start ignored, loop is %s", l.state)
		return nil
	}
	if l.handle.Peek().Token() == "" {
		l.mu.Unlock()
		l.log.Debugf("start ignored, credentials are required")
		return l.bus.Raise(events.CredentialsRequired)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	l.state = Starting
	l.cancel = cancel
	l.done = done
	l.mu.Unlock()

	go l.run(ctx, done)
	return nil
}

// Stop requests cancellation and raises PollStopping right away, even when a
// tick is still in flight.
func (l *Loop) Stop() error {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	if l.state == Starting || l.state == Running {
		l.state = Stopping
	}
	l.mu.Unlock()
	return l.bus.Raise(events.PollStopping)
}

// Wait blocks until the current loop task has exited or ctx is done.
func (l *Loop) Wait(ctx context.Context) error {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	var fatal error
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			fatal = monitoring.CapturePanic("poller", r)
			l.log.Errorf("poller panicked: %v", fatal)
		}
		l.finish(fatal)
	}()

	l.log.Infof("poller started")
	l.raise(events.PollStarting, nil)
	l.mu.Lock()
	if l.state == Starting {
		l.state = Running
	}
	l.mu.Unlock()

	// backend calls are never interrupted by Stop
	fetchCtx := context.WithoutCancel(ctx)
	timer := time.NewTimer(0)
	defer timer.Stop()
	first := true
	for {
		if !first {
			timer.Reset(l.rate)
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		} else {
			<-timer.C
			first = false
		}
		if ctx.Err() != nil {
			return
		}

		frames, err := l.tick(ctx, fetchCtx)
		switch {
		case err == nil:
		case backend.IsAuth(err):
			l.log.Warnf("credential rejected, stopping poller: %v", err)
			collectors.Load().ticks.WithLabelValues("unauthorized").Inc()
			l.raise(events.CredentialsRequired, nil)
			l.requestStop()
			return
		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			return
		default:
			fatal = fmt.Errorf("list vehicles: %w", err)
			collectors.Load().ticks.WithLabelValues("failed").Inc()
			l.log.Errorf("poll tick failed: %v", fatal)
			monitoring.CaptureException(fatal, map[string]string{"module": "poller"})
			return
		}
		collectors.Load().ticks.WithLabelValues("ok").Inc()
		if len(frames) > 0 {
			collectors.Load().framesDelivered.Add(float64(len(frames)))
			l.raise(events.NewFramesReady, map[string]any{events.KwFrames: frames})
		}
		l.log.Debugf("poll tick completed with %d frames", len(frames))
	}
}

// tick runs one list/detail cycle as a gate reader.
func (l *Loop) tick(ctx, fetchCtx context.Context) ([]model.Frame, error) {
	start := time.Now()
	defer func() { collectors.Load().tickDuration.Observe(time.Since(start).Seconds()) }()

	var frames []model.Frame
	err := l.handle.Read(ctx, func(b backend.Backend) error {
		summaries, err := b.ListVehicles(fetchCtx)
		if err != nil {
			return err
		}
		frames = l.collect(fetchCtx, b, summaries)
		return nil
	})
	return frames, err
}

// collect keeps asleep and offline summaries as they are and replaces online
// summaries with their detail frame. A failed detail fetch drops only that
// vehicle.
func (l *Loop) collect(ctx context.Context, b backend.Backend, summaries []model.Frame) []model.Frame {
	var (
		mu     sync.Mutex
		frames = make([]model.Frame, 0, len(summaries))
		g      errgroup.Group
	)
	g.SetLimit(l.parallelism)
	for _, s := range summaries {
		switch s.State() {
		case model.StateOnline:
			id := s.ID()
			g.Go(func() error {
				f, err := fetchDetail(ctx, b, id)
				if err != nil {
					collectors.Load().detailFailures.Inc()
					l.log.Errorf("vehicle %s detail fetch failed: %v", id, err)
					return nil
				}
				mu.Lock()
				frames = append(frames, f)
				mu.Unlock()
				return nil
			})
		case model.StateAsleep, model.StateOffline:
			mu.Lock()
			frames = append(frames, s)
			mu.Unlock()
		default:
			l.log.Warnf("vehicle %s reported unexpected state %q", s.ID(), s.State())
			mu.Lock()
			frames = append(frames, s)
			mu.Unlock()
		}
	}
	_ = g.Wait()
	return frames
}

// fetchDetail turns a panicking detail fetch into an error for that vehicle.
func fetchDetail(ctx context.Context, b backend.Backend, id string) (f model.Frame, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = monitoring.CapturePanic("poller", r)
		}
	}()
	return b.FetchDetail(ctx, id)
}

func (l *Loop) requestStop() {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.state = Stopping
	l.mu.Unlock()
}

func (l *Loop) finish(fatal error) {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.state = Stopped
	l.mu.Unlock()
	l.log.Infof("poller terminated")
	var kw map[string]any
	if fatal != nil {
		kw = map[string]any{events.KwError: fatal}
	}
	l.raise(events.PollStopped, kw)
}

// raise publishes from the loop task, where a strict-mode handler failure has
// no caller to return to.
func (l *Loop) raise(name eventbus.Name, kw map[string]any) {
	if err := l.bus.RaiseKw(name, kw); err != nil {
		l.log.Errorf("raise %s: %v", name, err)
	}
}
