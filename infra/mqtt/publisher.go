package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"

	coremetrics "github.com/kilianp07/etr/core/metrics"
	"github.com/kilianp07/etr/core/model"
)

// FramePublisher publishes every received frame, retained, on
// StatePrefix/<vehicle_id>. It is used as a metrics sink so it can be
// combined with the other sinks.
type FramePublisher struct {
	conn *Conn
	cfg  Config
}

var _ coremetrics.MetricsSink = (*FramePublisher)(nil)

// NewFramePublisher connects to the broker.
func NewFramePublisher(cfg Config) (*FramePublisher, error) {
	cfg.SetDefaults()
	conn, err := dial(cfg, "mqtt_frame_publisher")
	if err != nil {
		return nil, fmt.Errorf("mqtt frame publisher: %w", err)
	}
	return &FramePublisher{conn: conn, cfg: cfg}, nil
}

// RecordFrames publishes the batch. Frames without an id are skipped; all
// publish errors are returned joined.
func (p *FramePublisher) RecordFrames(batch coremetrics.FrameBatch) error {
	var errs []error
	for _, f := range batch.Frames {
		if err := p.Publish(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Publish sends one frame.
func (p *FramePublisher) Publish(f model.Frame) error {
	id := f.ID()
	if id == "" {
		return nil
	}
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame %s: %w", id, err)
	}
	return p.conn.publish(joinTopic(p.cfg.StatePrefix, id), p.cfg.qos("state"), true, payload)
}

// Close disconnects from the broker.
func (p *FramePublisher) Close() { p.conn.Close() }
