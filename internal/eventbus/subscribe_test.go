package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesEvents(t *testing.T) {
	bus := newTestBus()
	ch, cancel, err := bus.Subscribe(4, evA)
	require.NoError(t, err)
	require.NoError(t, bus.Raise(evA, "hello"))
	require.NoError(t, bus.Raise(evB, "ignored"))
	ev := <-ch
	assert.Equal(t, evA, ev.Name)
	assert.Equal(t, "hello", ev.Arg(0))
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
}

func TestSubscribeAllNames(t *testing.T) {
	bus := newTestBus()
	ch, cancel, err := bus.Subscribe(0)
	require.NoError(t, err)
	defer cancel()
	require.NoError(t, bus.Raise(evA))
	require.NoError(t, bus.Raise(evB))
	assert.Equal(t, evA, (<-ch).Name)
	assert.Equal(t, evB, (<-ch).Name)
}

func TestSubscribeDropsWhenFull(t *testing.T) {
	bus := newTestBus()
	ch, cancel, err := bus.Subscribe(1, evA)
	require.NoError(t, err)
	require.NoError(t, bus.Raise(evA, 1))
	require.NoError(t, bus.Raise(evA, 2))
	assert.Equal(t, 1, (<-ch).Arg(0))
	cancel()
	cancel()
	require.NoError(t, bus.Raise(evA, 3))
	_, ok := <-ch
	assert.False(t, ok)
}
