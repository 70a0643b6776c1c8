package metrics_test

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/etr/core/factory"
	metrics "github.com/kilianp07/etr/core/metrics"
	_ "github.com/kilianp07/etr/infra/metrics"
)

type closingSink struct {
	metrics.NopSink
	closed *atomic.Int32
}

func (s closingSink) Close() { s.closed.Add(1) }

var closedSinks atomic.Int32

func init() {
	_ = metrics.RegisterMetricsSink("closing_test", func(map[string]any) (metrics.MetricsSink, error) {
		return closingSink{closed: &closedSinks}, nil
	})
	_ = metrics.RegisterMetricsSink("broken_test", func(map[string]any) (metrics.MetricsSink, error) {
		return nil, errors.New("cannot reach backend")
	})
}

func TestBuiltinSinkTypes(t *testing.T) {
	types := metrics.SinkTypes()
	for _, name := range []string{"nop", "prometheus", "influx"} {
		assert.Contains(t, types, name)
	}
}

func TestNewMetricsSinkShapes(t *testing.T) {
	s, err := metrics.NewMetricsSink(nil)
	require.NoError(t, err)
	assert.IsType(t, metrics.NopSink{}, s)

	s, err = metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}})
	require.NoError(t, err)
	assert.IsType(t, metrics.NopSink{}, s)

	s, err = metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "closing_test"}})
	require.NoError(t, err)
	m, ok := s.(*metrics.MultiSink)
	require.True(t, ok, "got %T", s)
	assert.Len(t, m.Sinks, 2)
}

func TestNewMetricsSinkUnknownType(t *testing.T) {
	_, err := metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "graphite"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, factory.ErrUnknownType)
	assert.Contains(t, err.Error(), "nop")
}

func TestNewMetricsSinkClosesBuiltOnFailure(t *testing.T) {
	closedSinks.Store(0)
	_, err := metrics.NewMetricsSink([]factory.ModuleConfig{
		{Type: "closing_test"},
		{Type: "closing_test"},
		{Type: "broken_test"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot reach backend")
	assert.Equal(t, int32(2), closedSinks.Load())
}
