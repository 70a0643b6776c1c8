package poller

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

type collectorSet struct {
	ticks           *prometheus.CounterVec
	tickDuration    prometheus.Histogram
	framesDelivered prometheus.Counter
	detailFailures  prometheus.Counter
}

var collectors atomic.Pointer[collectorSet]

func newCollectors() *collectorSet {
	return &collectorSet{
		ticks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poll_ticks_total",
				Help: "Number of poll ticks by outcome",
			},
			[]string{"outcome"},
		),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "poll_tick_duration_seconds",
			Help:    "Duration of a poll tick including gate wait",
			Buckets: prometheus.DefBuckets,
		}),
		framesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "poll_frames_delivered_total",
			Help: "Number of frames delivered through NewFramesReady",
		}),
		detailFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "poll_detail_fetch_failures_total",
			Help: "Number of dropped vehicle detail fetches",
		}),
	}
}

func init() {
	collectors.Store(newCollectors())
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers poller metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := collectors.Load()
	reg.MustRegister(c.ticks, c.tickDuration, c.framesDelivered, c.detailFailures)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	collectors.Store(newCollectors())
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
