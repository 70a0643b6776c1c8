package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/etr/core/backend"
	"github.com/kilianp07/etr/core/events"
	"github.com/kilianp07/etr/core/gate"
	"github.com/kilianp07/etr/core/model"
	"github.com/kilianp07/etr/internal/backendtest"
	"github.com/kilianp07/etr/internal/eventbus"
)

type harness struct {
	fake   *backendtest.Fake
	shared *gate.Shared[backend.Backend]
	bus    *eventbus.Bus
	loop   *Loop
	events <-chan eventbus.Event
}

func newHarness(t *testing.T, fake *backendtest.Fake, opts ...Option) *harness {
	t.Helper()
	bus := eventbus.New(events.All())
	ch, cancel, err := bus.Subscribe(128)
	require.NoError(t, err)
	t.Cleanup(cancel)
	shared := gate.NewShared[backend.Backend](gate.New(), fake)
	opts = append([]Option{WithRate(10 * time.Millisecond)}, opts...)
	h := &harness{
		fake:   fake,
		shared: shared,
		bus:    bus,
		loop:   New(shared, bus, opts...),
		events: ch,
	}
	t.Cleanup(func() {
		_ = h.loop.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.loop.Wait(ctx)
	})
	return h
}

// next returns the first event named name, failing after a second.
func (h *harness) next(t *testing.T, name eventbus.Name) eventbus.Event {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case ev := <-h.events:
			if ev.Name == name {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", name)
			return eventbus.Event{}
		}
	}
}

func TestTickMergesDetailsAndSummaries(t *testing.T) {
	fake := backendtest.New("tok",
		backendtest.Vehicle("1", model.StateOnline),
		backendtest.Vehicle("2", model.StateOnline),
		backendtest.Vehicle("3", model.StateAsleep),
	)
	h := newHarness(t, fake)
	require.NoError(t, h.loop.Start())

	h.next(t, events.PollStarting)
	frames := events.Frames(h.next(t, events.NewFramesReady))
	require.Len(t, frames, 3)

	byID := map[string]model.Frame{}
	for _, f := range frames {
		byID[f.ID()] = f
	}
	assert.NotNil(t, byID["1"].Section("charge_state"))
	assert.NotNil(t, byID["2"].Section("charge_state"))
	assert.Nil(t, byID["3"].Section("charge_state"))
	assert.Equal(t, model.StateAsleep, byID["3"].State())
}

func TestFailedDetailIsDropped(t *testing.T) {
	fake := backendtest.New("tok",
		backendtest.Vehicle("1", model.StateOnline),
		backendtest.Vehicle("2", model.StateOnline),
		backendtest.Vehicle("3", model.StateOffline),
	)
	fake.DetailFn = func(_ context.Context, id string) (model.Frame, error) {
		if id == "2" {
			return nil, errors.New("boom")
		}
		return model.Frame{"id": id, "state": "online", "vehicle_state": map[string]any{}}, nil
	}
	h := newHarness(t, fake)
	require.NoError(t, h.loop.Start())

	frames := events.Frames(h.next(t, events.NewFramesReady))
	require.Len(t, frames, 2)
	for _, f := range frames {
		assert.NotEqual(t, "2", f.ID())
	}
}

func TestUnexpectedStateIsKept(t *testing.T) {
	fake := backendtest.New("tok", model.Frame{"id": "9", "state": "updating"})
	h := newHarness(t, fake)
	require.NoError(t, h.loop.Start())

	frames := events.Frames(h.next(t, events.NewFramesReady))
	require.Len(t, frames, 1)
	assert.Equal(t, "9", frames[0].ID())
	assert.Zero(t, fake.Details.Load())
}

func TestAuthFailureRequestsCredentials(t *testing.T) {
	fake := backendtest.New("tok")
	fake.ListFn = func(context.Context) ([]model.Frame, error) {
		return nil, backend.NewAPIError(401, "token expired")
	}
	h := newHarness(t, fake)

	var framesRaised bool
	var mu sync.Mutex
	require.NoError(t, h.bus.Register(events.NewFramesReady, eventbus.Func(func(eventbus.Event) error {
		mu.Lock()
		framesRaised = true
		mu.Unlock()
		return nil
	})))

	require.NoError(t, h.loop.Start())
	h.next(t, events.CredentialsRequired)
	stopped := h.next(t, events.PollStopped)
	assert.NoError(t, events.StopError(stopped))

	require.NoError(t, h.loop.Wait(context.Background()))
	assert.Equal(t, Stopped, h.loop.State())
	mu.Lock()
	assert.False(t, framesRaised)
	mu.Unlock()
}

func TestStartWithoutTokenStaysStopped(t *testing.T) {
	fake := backendtest.New("", backendtest.Vehicle("1", model.StateOnline))
	h := newHarness(t, fake)

	require.NoError(t, h.loop.Start())
	h.next(t, events.CredentialsRequired)
	assert.Equal(t, Stopped, h.loop.State())
	assert.Zero(t, fake.Lists.Load())
}

func TestStartIsSingleton(t *testing.T) {
	fake := backendtest.New("tok", backendtest.Vehicle("1", model.StateAsleep))
	h := newHarness(t, fake)

	var starts int
	var mu sync.Mutex
	require.NoError(t, h.bus.Register(events.PollStarting, eventbus.Func(func(eventbus.Event) error {
		mu.Lock()
		starts++
		mu.Unlock()
		return nil
	})))

	require.NoError(t, h.loop.Start())
	require.NoError(t, h.loop.Start())
	h.next(t, events.NewFramesReady)
	require.NoError(t, h.loop.Start())

	mu.Lock()
	assert.Equal(t, 1, starts)
	mu.Unlock()
	assert.Equal(t, Running, h.loop.State())
}

func TestFatalListErrorIsReported(t *testing.T) {
	fake := backendtest.New("tok")
	fake.ListFn = func(context.Context) ([]model.Frame, error) {
		return nil, errors.New("connection refused")
	}
	h := newHarness(t, fake)
	require.NoError(t, h.loop.Start())

	stopped := h.next(t, events.PollStopped)
	err := events.StopError(stopped)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	require.NoError(t, h.loop.Wait(context.Background()))
	assert.Equal(t, Stopped, h.loop.State())
}

func TestStopDuringTickLetsTickFinish(t *testing.T) {
	fake := backendtest.New("tok", backendtest.Vehicle("1", model.StateOnline))
	entered := make(chan struct{})
	proceed := make(chan struct{})
	var once sync.Once
	fake.DetailFn = func(ctx context.Context, id string) (model.Frame, error) {
		once.Do(func() { close(entered) })
		<-proceed
		return model.Frame{"id": id, "state": "online"}, ctx.Err()
	}
	h := newHarness(t, fake)
	require.NoError(t, h.loop.Start())

	<-entered
	require.NoError(t, h.loop.Stop())
	h.next(t, events.PollStopping)
	assert.Equal(t, Stopping, h.loop.State())
	close(proceed)

	frames := events.Frames(h.next(t, events.NewFramesReady))
	assert.Len(t, frames, 1)
	h.next(t, events.PollStopped)
	assert.Equal(t, Stopped, h.loop.State())
	assert.Equal(t, int32(1), fake.Lists.Load())
}

func TestNoFramesNoEvent(t *testing.T) {
	fake := backendtest.New("tok")
	h := newHarness(t, fake)

	ticks := make(chan struct{}, 8)
	fake.ListFn = func(context.Context) ([]model.Frame, error) {
		ticks <- struct{}{}
		return nil, nil
	}
	require.NoError(t, h.loop.Start())
	<-ticks
	<-ticks
	require.NoError(t, h.loop.Stop())
	require.NoError(t, h.loop.Wait(context.Background()))

	for {
		select {
		case ev := <-h.events:
			assert.NotEqual(t, events.NewFramesReady, ev.Name)
		default:
			return
		}
	}
}

func TestTickWaitsForExclusive(t *testing.T) {
	fake := backendtest.New("tok", backendtest.Vehicle("1", model.StateAsleep))
	h := newHarness(t, fake)

	unlock, err := h.shared.Gate().Lock(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.loop.Start())

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, fake.Lists.Load())
	unlock()
	h.next(t, events.NewFramesReady)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestTickDropsPanickingDetail(t *testing.T) {
	fake := backendtest.New("tok",
		backendtest.Vehicle("1", model.StateOnline),
		backendtest.Vehicle("2", model.StateOnline),
		backendtest.Vehicle("3", model.StateAsleep),
	)
	fake.DetailFn = func(_ context.Context, id string) (model.Frame, error) {
		if id == "2" {
			panic("detail exploded")
		}
		return model.Frame{"id": id, "state": string(model.StateOnline)}, nil
	}
	h := newHarness(t, fake)
	require.NoError(t, h.loop.Start())

	frames := events.Frames(h.next(t, events.NewFramesReady))
	require.Len(t, frames, 2)
	for _, f := range frames {
		assert.NotEqual(t, "2", f.ID())
	}
	assert.Equal(t, Running, h.loop.State())
}
