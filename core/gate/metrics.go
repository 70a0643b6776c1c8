package gate

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

type collectorSet struct {
	readerWait    prometheus.Histogram
	exclusiveWait prometheus.Histogram
	activeReaders prometheus.Gauge
}

// collectors is swapped as a whole by ResetMetrics so a running gate never
// observes a half-replaced set.
var collectors atomic.Pointer[collectorSet]

func newCollectors() *collectorSet {
	return &collectorSet{
		readerWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gate_reader_wait_seconds",
			Help:    "Time readers spent waiting for the access gate",
			Buckets: prometheus.DefBuckets,
		}),
		exclusiveWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gate_exclusive_wait_seconds",
			Help:    "Time exclusive operations spent claiming the gate and draining readers",
			Buckets: prometheus.DefBuckets,
		}),
		activeReaders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gate_active_readers",
			Help: "Readers currently holding the access gate",
		}),
	}
}

func init() {
	collectors.Store(newCollectors())
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers the gate metrics on reg, or on the default
// registerer when reg is nil.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := collectors.Load()
	reg.MustRegister(c.readerWait, c.exclusiveWait, c.activeReaders)
}

// ResetMetrics recreates the collectors for tests and registers them on reg
// when it is not nil.
func ResetMetrics(reg prometheus.Registerer) {
	collectors.Store(newCollectors())
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
