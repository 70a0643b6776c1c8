package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/etr/core/events"
	coremetrics "github.com/kilianp07/etr/core/metrics"
	"github.com/kilianp07/etr/infra/logger"
	"github.com/kilianp07/etr/internal/eventbus"
)

const collectorBuffer = 256

// StartEventCollector subscribes to the event bus and records metrics for
// frame, command and poll events. It stops when the context is canceled.
// Events are dropped while the sink lags more than the subscription buffer.
func StartEventCollector(ctx context.Context, bus *eventbus.Bus, sink coremetrics.MetricsSink) error {
	if bus == nil || sink == nil {
		return nil
	}
	sub, cancel, err := bus.Subscribe(collectorBuffer,
		events.NewFramesReady,
		events.CommandCompleted,
		events.PollStarting,
		events.PollStopping,
		events.PollStopped,
	)
	if err != nil {
		return err
	}
	log := logger.New("metrics-collector")
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := record(sink, ev, time.Now()); err != nil {
					log.Warnf("record %s: %v", ev.Name, err)
				}
			}
		}
	}()
	return nil
}

func record(sink coremetrics.MetricsSink, ev eventbus.Event, now time.Time) error {
	switch ev.Name {
	case events.NewFramesReady:
		return sink.RecordFrames(coremetrics.FrameBatch{Frames: events.Frames(ev), Time: now})
	case events.CommandCompleted:
		rec, ok := sink.(coremetrics.CommandRecorder)
		if !ok {
			return nil
		}
		out, ok := events.AsCommandOutcome(ev)
		if !ok {
			return nil
		}
		return rec.RecordCommand(coremetrics.CommandEvent{
			CommandID: out.ID,
			Command:   out.Name,
			OK:        out.OK,
			Error:     out.Error,
			Time:      now,
		})
	case events.PollStarting, events.PollStopping, events.PollStopped:
		rec, ok := sink.(coremetrics.PollRecorder)
		if !ok {
			return nil
		}
		pe := coremetrics.PollEvent{Phase: pollPhase(ev.Name), Time: now}
		if err := events.StopError(ev); err != nil {
			pe.Error = err.Error()
		}
		return rec.RecordPoll(pe)
	}
	return nil
}

func pollPhase(name eventbus.Name) string {
	switch name {
	case events.PollStarting:
		return "starting"
	case events.PollStopping:
		return "stopping"
	default:
		return "stopped"
	}
}
