package command

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

type collectorSet struct {
	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
}

var collectors atomic.Pointer[collectorSet]

func newCollectors() *collectorSet {
	return &collectorSet{
		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vehicle_commands_total",
				Help: "Number of completed vehicle commands",
			},
			[]string{"command", "outcome"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vehicle_command_duration_seconds",
				Help:    "Time from worker start to command completion",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),
	}
}

func init() {
	collectors.Store(newCollectors())
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers command metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := collectors.Load()
	reg.MustRegister(c.commandsTotal, c.commandDuration)
}

// ResetMetrics reinitializes metrics collectors for testing purposes.
func ResetMetrics(reg prometheus.Registerer) {
	collectors.Store(newCollectors())
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
