package metrics

import "errors"

// MultiSink fans records out to several sinks. Every sink is tried; the
// errors are joined.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordFrames forwards the batch to all sinks.
func (m *MultiSink) RecordFrames(batch FrameBatch) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordFrames(batch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordCommand forwards to sinks implementing CommandRecorder.
func (m *MultiSink) RecordCommand(ev CommandEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(CommandRecorder); ok {
			if err := rec.RecordCommand(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordPoll forwards to sinks implementing PollRecorder.
func (m *MultiSink) RecordPoll(ev PollEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(PollRecorder); ok {
			if err := rec.RecordPoll(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink holding a connection.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
