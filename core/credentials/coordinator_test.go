package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/etr/core/backend"
	"github.com/kilianp07/etr/core/events"
	"github.com/kilianp07/etr/core/gate"
	"github.com/kilianp07/etr/internal/backendtest"
	"github.com/kilianp07/etr/internal/eventbus"
	"github.com/kilianp07/etr/internal/workerpool"
)

type fixture struct {
	coord  *Coordinator
	shared *gate.Shared[backend.Backend]
	bus    *eventbus.Bus
	events <-chan eventbus.Event
}

func newFixture(t *testing.T, b backend.Backend) *fixture {
	t.Helper()
	bus := eventbus.New(events.All())
	ch, cancel, err := bus.Subscribe(32)
	require.NoError(t, err)
	t.Cleanup(cancel)
	pool := workerpool.New(2, nil)
	t.Cleanup(func() { _ = pool.Close(context.Background()) })
	shared := gate.NewShared(gate.New(), b)
	return &fixture{coord: New(shared, bus, pool), shared: shared, bus: bus, events: ch}
}

func (f *fixture) result(t *testing.T) events.CredentialsOutcome {
	t.Helper()
	select {
	case ev := <-f.events:
		require.Equal(t, events.CredentialsResult, ev.Name)
		out, ok := events.AsCredentialsOutcome(ev)
		require.True(t, ok)
		return out
	case <-time.After(time.Second):
		t.Fatal("no credentials result")
		return events.CredentialsOutcome{}
	}
}

func TestValidation(t *testing.T) {
	f := newFixture(t, backendtest.New(""))

	_, err := f.coord.LoadCredentials("", "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "user", verr.Field)

	_, err = f.coord.LoadCredentials("a", "", "")
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "password", verr.Field)

	select {
	case ev := <-f.events:
		t.Fatalf("unexpected event %s", ev.Name)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestLoadWithToken(t *testing.T) {
	fake := backendtest.New("")
	f := newFixture(t, fake)

	id, err := f.coord.LoadCredentials("", "", "secret")
	require.NoError(t, err)
	out := f.result(t)
	assert.Equal(t, id, out.ID)
	assert.True(t, out.OK)
	assert.Equal(t, "secret", out.Payload["access_token"])
	assert.Equal(t, "secret", f.coord.CurrentToken())
}

func TestLoadWithRejectedToken(t *testing.T) {
	fake := backendtest.New("")
	fake.VerifyFn = func(context.Context, string) error {
		return backend.NewAPIError(401, "invalid token")
	}
	f := newFixture(t, fake)

	id, err := f.coord.LoadCredentials("", "", "bad")
	require.NoError(t, err)
	out := f.result(t)
	assert.Equal(t, id, out.ID)
	assert.False(t, out.OK)
	assert.Contains(t, out.Error, "invalid token")
	assert.Empty(t, out.Payload)
}

func TestLoadWithUserPassword(t *testing.T) {
	fake := backendtest.New("")
	f := newFixture(t, fake)

	_, err := f.coord.LoadCredentials("alice", "pw", "")
	require.NoError(t, err)
	out := f.result(t)
	require.True(t, out.OK)
	assert.Equal(t, "token-alice", out.Payload["access_token"])
	assert.Equal(t, "token-alice", fake.Token())
}

func TestLoadWithoutAccessToken(t *testing.T) {
	fake := backendtest.New("old")
	fake.ExchangeFn = func(context.Context, string, string) (map[string]any, error) {
		return map[string]any{"token_type": "bearer"}, nil
	}
	f := newFixture(t, fake)

	_, err := f.coord.LoadCredentials("alice", "pw", "")
	require.NoError(t, err)
	out := f.result(t)
	assert.False(t, out.OK)
	assert.Equal(t, "old", fake.Token())
}

func TestLoadWaitsForReaders(t *testing.T) {
	fake := backendtest.New("")
	f := newFixture(t, fake)

	release, err := f.shared.Gate().Acquire(context.Background())
	require.NoError(t, err)
	_, err = f.coord.LoadCredentials("", "", "secret")
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, fake.Token())
	release()
	assert.True(t, f.result(t).OK)
}

func TestSwitchBackend(t *testing.T) {
	first := backendtest.New("one")
	f := newFixture(t, first)

	second := backendtest.New("two")
	prev, err := f.coord.SwitchBackend(context.Background(), second, true)
	require.NoError(t, err)
	assert.Same(t, backend.Backend(first), prev)
	assert.Same(t, backend.Backend(second), f.shared.Peek())
	assert.Equal(t, "two", f.coord.CurrentToken())

	ev := <-f.events
	assert.Equal(t, events.ApiSwitched, ev.Name)
	assert.True(t, events.IsDemo(ev))

	_, err = f.coord.SwitchBackend(context.Background(), nil, false)
	assert.Error(t, err)
}

func TestConcurrentSwitchesReturnEachReplacedBackendOnce(t *testing.T) {
	first := backendtest.New("first")
	f := newFixture(t, first)

	const n = 16
	nexts := make([]*backendtest.Fake, n)
	prevs := make(chan backend.Backend, n)
	var wg sync.WaitGroup
	for i := range nexts {
		nexts[i] = backendtest.New(fmt.Sprintf("b%d", i))
		wg.Add(1)
		go func(b backend.Backend) {
			defer wg.Done()
			prev, err := f.coord.SwitchBackend(context.Background(), b, false)
			assert.NoError(t, err)
			prevs <- prev
		}(nexts[i])
	}
	wg.Wait()
	close(prevs)

	seen := map[backend.Backend]int{}
	for p := range prevs {
		seen[p]++
	}
	installed := f.shared.Peek()
	assert.Zero(t, seen[installed], "installed backend reported as replaced")
	assert.Equal(t, 1, seen[backend.Backend(first)])
	for _, b := range nexts {
		if backend.Backend(b) == installed {
			continue
		}
		assert.Equal(t, 1, seen[backend.Backend(b)], "backend %s", b.Token())
	}
}

func TestSwitchBackendHonoursContext(t *testing.T) {
	f := newFixture(t, backendtest.New(""))
	release, err := f.shared.Gate().Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = f.coord.SwitchBackend(ctx, backendtest.New("x"), false)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResetCredential(t *testing.T) {
	fake := backendtest.New("tok")
	f := newFixture(t, fake)

	require.NoError(t, f.coord.ResetCredential(context.Background()))
	assert.Empty(t, fake.Token())
	assert.Empty(t, f.coord.CurrentToken())
}

func TestLoadReportsBackendPanic(t *testing.T) {
	fake := backendtest.New("old")
	fake.ExchangeFn = func(context.Context, string, string) (map[string]any, error) {
		panic("exchange exploded")
	}
	f := newFixture(t, fake)

	id, err := f.coord.LoadCredentials("a", "b", "")
	require.NoError(t, err)
	out := f.result(t)
	assert.Equal(t, id, out.ID)
	assert.False(t, out.OK)
	assert.Contains(t, out.Error, "exchange exploded")
	assert.Equal(t, "old", f.coord.CurrentToken())
	assert.False(t, f.shared.Gate().ExclusiveInProgress())
}
