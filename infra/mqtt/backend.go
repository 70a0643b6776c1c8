package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/etr/core/backend"
	"github.com/kilianp07/etr/core/model"
)

// Backend implements backend.Backend as request/response calls over MQTT.
// Requests are published on RequestTopic and answered on
// ResponsePrefix/<request_id>.
type Backend struct {
	conn *Conn
	cfg  Config

	mu      sync.Mutex
	pending map[string]chan response
	token   string
}

var _ backend.Backend = (*Backend)(nil)

// NewBackend connects to the broker and subscribes to the response topics.
func NewBackend(cfg Config, token string) (*Backend, error) {
	cfg.SetDefaults()
	b := &Backend{cfg: cfg, pending: make(map[string]chan response), token: token}
	conn, err := dial(cfg, "mqtt_backend", subscription{
		topic:   joinTopic(cfg.ResponsePrefix, "+"),
		qos:     cfg.qos("response"),
		handler: b.onResponse,
	})
	if err != nil {
		return nil, fmt.Errorf("mqtt backend: %w", err)
	}
	b.conn = conn
	return b, nil
}

func (b *Backend) onResponse(_ paho.Client, msg paho.Message) {
	var r response
	if err := decode(msg.Payload(), &r); err != nil {
		b.conn.log.Errorf("failed to decode response: %v", err)
		return
	}
	b.mu.Lock()
	ch, ok := b.pending[r.RequestID]
	if ok {
		delete(b.pending, r.RequestID)
	}
	b.mu.Unlock()
	if !ok {
		b.conn.log.Debugf("response %s has no pending request", r.RequestID)
		return
	}
	ch <- r
}

// call publishes one request and waits for its response, the context or the
// configured timeout, whichever comes first.
func (b *Backend) call(ctx context.Context, req request) (any, error) {
	req.RequestID = uuid.NewString()
	req.Token = b.Token()
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan response, 1)
	b.mu.Lock()
	b.pending[req.RequestID] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, req.RequestID)
		b.mu.Unlock()
	}()

	if err := b.conn.publish(b.cfg.RequestTopic, b.cfg.qos("request"), false, payload); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout())
	defer cancel()
	select {
	case r := <-ch:
		if r.Status != 0 && r.Status != http.StatusOK {
			return nil, backend.NewAPIError(r.Status, r.Error)
		}
		return r.Data, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s %s: %w", req.Op, req.RequestID, ctx.Err())
	}
}

func (b *Backend) ListVehicles(ctx context.Context) ([]model.Frame, error) {
	data, err := b.call(ctx, request{Op: OpListVehicles})
	if err != nil {
		return nil, err
	}
	items, ok := data.([]any)
	if !ok && data != nil {
		return nil, fmt.Errorf("list vehicles: unexpected payload %T", data)
	}
	frames := make([]model.Frame, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("list vehicles: unexpected item %T", it)
		}
		frames = append(frames, model.Frame(m))
	}
	return frames, nil
}

func (b *Backend) FetchDetail(ctx context.Context, id string) (model.Frame, error) {
	data, err := b.call(ctx, request{Op: OpVehicleDetail, Args: []any{id}})
	if err != nil {
		return nil, err
	}
	return asFrame(data), nil
}

func (b *Backend) VerifyToken(ctx context.Context) error {
	_, err := b.call(ctx, request{Op: OpVerifyToken})
	return err
}

func (b *Backend) ExchangeCredentials(ctx context.Context, user, password string) (map[string]any, error) {
	data, err := b.call(ctx, request{Op: OpExchangeCredentials, Args: []any{user, password}})
	if err != nil {
		return nil, err
	}
	m, ok := data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("exchange credentials: unexpected payload %T", data)
	}
	return m, nil
}

func (b *Backend) Execute(ctx context.Context, name string, args ...any) (model.Frame, error) {
	data, err := b.call(ctx, request{Op: OpCommand, Command: name, Args: args})
	if err != nil {
		return nil, err
	}
	return asFrame(data), nil
}

func (b *Backend) Token() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.token
}

func (b *Backend) SetToken(tok string) {
	b.mu.Lock()
	b.token = tok
	b.mu.Unlock()
}

// Close disconnects from the broker.
func (b *Backend) Close() { b.conn.Close() }

func asFrame(data any) model.Frame {
	switch d := data.(type) {
	case map[string]any:
		return model.Frame(d)
	case nil:
		return model.Frame{}
	default:
		return model.Frame{"result": d}
	}
}
