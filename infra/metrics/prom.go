package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/etr/core/metrics"
)

// PromSink records vehicle frames, commands and poll lifecycle changes in
// Prometheus metrics.
type PromSink struct {
	frames   *prometheus.CounterVec
	battery  *prometheus.GaugeVec
	commands *prometheus.CounterVec
	polls    *prometheus.CounterVec
}

// NewPromSink registers the sink metrics on the default Prometheus
// registerer. The exporter is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	frames := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vehicle_frames_total",
		Help: "Total number of vehicle frames received by state",
	}, []string{"state"})
	battery := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vehicle_battery_level_percent",
		Help: "Last reported battery level per vehicle",
	}, []string{"vehicle_id"})
	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vehicle_command_results_total",
		Help: "Total number of command completions",
	}, []string{"command", "ok"})
	polls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "poll_lifecycle_events_total",
		Help: "Polling loop lifecycle changes by phase",
	}, []string{"phase"})

	var err error
	if frames, err = register(reg, frames); err != nil {
		return nil, err
	}
	if battery, err = register(reg, battery); err != nil {
		return nil, err
	}
	if commands, err = register(reg, commands); err != nil {
		return nil, err
	}
	if polls, err = register(reg, polls); err != nil {
		return nil, err
	}
	return &PromSink{frames: frames, battery: battery, commands: commands, polls: polls}, nil
}

// register returns the already registered collector when c was registered
// by an earlier sink.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordFrames counts frames by state and updates battery gauges.
func (s *PromSink) RecordFrames(batch coremetrics.FrameBatch) error {
	for _, f := range batch.Frames {
		s.frames.WithLabelValues(string(f.State())).Inc()
		for _, nv := range numericFields(f) {
			if nv.name == "battery_level" {
				s.battery.WithLabelValues(f.ID()).Set(nv.value)
			}
		}
	}
	return nil
}

// RecordCommand counts a command completion.
func (s *PromSink) RecordCommand(ev coremetrics.CommandEvent) error {
	s.commands.WithLabelValues(ev.Command, strconv.FormatBool(ev.OK)).Inc()
	return nil
}

// RecordPoll counts a lifecycle change.
func (s *PromSink) RecordPoll(ev coremetrics.PollEvent) error {
	s.polls.WithLabelValues(ev.Phase).Inc()
	return nil
}
