// Package metrics defines the sinks that record what the engine observes:
// the frames of every poll tick, command completions and poll lifecycle
// changes. Sinks are created by name from configuration through
// NewMetricsSink; several configured sinks are combined in a MultiSink.
package metrics
