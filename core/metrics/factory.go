package metrics

import (
	"fmt"
	"strings"

	"github.com/kilianp07/etr/core/factory"
)

var sinkRegistry = factory.NewRegistry[MetricsSink]()

// RegisterMetricsSink adds a metrics sink factory identified by name.
func RegisterMetricsSink(name string, f factory.Factory[MetricsSink]) error {
	return sinkRegistry.Register(name, f)
}

// SinkTypes lists the registered sink names.
func SinkTypes() []string { return sinkRegistry.Types() }

// NewMetricsSink builds one sink per entry. No entry yields a NopSink and
// several entries are combined in a MultiSink. When an entry fails, the sinks
// built before it are closed.
func NewMetricsSink(cfgs []factory.ModuleConfig) (MetricsSink, error) {
	if len(cfgs) == 0 {
		return NopSink{}, nil
	}
	built := make([]MetricsSink, 0, len(cfgs))
	for i, c := range cfgs {
		s, err := sinkRegistry.Create(c)
		if err != nil {
			NewMultiSink(built...).Close()
			return nil, fmt.Errorf("metrics sink #%d %q (known: %s): %w",
				i, c.Type, strings.Join(SinkTypes(), ", "), err)
		}
		built = append(built, s)
	}
	if len(built) == 1 {
		return built[0], nil
	}
	return NewMultiSink(built...), nil
}
