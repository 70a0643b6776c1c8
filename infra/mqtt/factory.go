package mqtt

import (
	"github.com/kilianp07/etr/core/factory"
	coremetrics "github.com/kilianp07/etr/core/metrics"
)

// init registers the "mqtt" metrics sink, a FramePublisher configured from
// the sink's conf map.
func init() {
	_ = coremetrics.RegisterMetricsSink("mqtt", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		return NewFramePublisher(c)
	})
}
