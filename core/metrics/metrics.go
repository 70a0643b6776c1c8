package metrics

import (
	"time"

	"github.com/kilianp07/etr/core/model"
)

// FrameBatch is the set of frames delivered by one poll tick.
type FrameBatch struct {
	Frames []model.Frame
	Time   time.Time
}

// MetricsSink records vehicle frames.
type MetricsSink interface {
	RecordFrames(batch FrameBatch) error
}

// CommandEvent is a completed vehicle command.
type CommandEvent struct {
	CommandID string
	Command   string
	VehicleID string
	OK        bool
	Error     string
	Time      time.Time
}

// CommandRecorder records command completions.
type CommandRecorder interface {
	RecordCommand(ev CommandEvent) error
}

// PollEvent is a polling loop lifecycle change.
type PollEvent struct {
	// Phase is one of "starting", "stopping" or "stopped".
	Phase string
	Error string
	Time  time.Time
}

// PollRecorder records polling loop lifecycle changes.
type PollRecorder interface {
	RecordPoll(ev PollEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordFrames(FrameBatch) error    { return nil }
func (NopSink) RecordCommand(CommandEvent) error { return nil }
func (NopSink) RecordPoll(PollEvent) error       { return nil }
