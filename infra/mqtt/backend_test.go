package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/etr/core/backend"
	"github.com/kilianp07/etr/core/factory"
	coremetrics "github.com/kilianp07/etr/core/metrics"
	"github.com/kilianp07/etr/core/model"
	"github.com/kilianp07/etr/infra/demo"
)

func newPair(t *testing.T, token string) (*Backend, *fakeBroker) {
	t.Helper()
	broker := useFakeBroker(t)
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "etr-test", TimeoutMS: 1000}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	_, err := NewResponder(ctx, cfg, demo.New())
	require.NoError(t, err)
	b, err := NewBackend(cfg, token)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b, broker
}

func TestBackendListVehicles(t *testing.T) {
	b, _ := newPair(t, demo.DefaultToken)
	frames, err := b.ListVehicles(context.Background())
	require.NoError(t, err)
	require.Len(t, frames, 4)
	assert.Equal(t, "90000000000000001", frames[0].ID())
	assert.Equal(t, model.StateOnline, frames[0].State())
}

func TestBackendFetchDetail(t *testing.T) {
	b, _ := newPair(t, demo.DefaultToken)
	d, err := b.FetchDetail(context.Background(), "90000000000000001")
	require.NoError(t, err)
	assert.NotNil(t, d.Section("charge_state"))

	_, err = b.FetchDetail(context.Background(), "90000000000000003")
	var apiErr *backend.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Message)
}

func TestBackendUnauthorized(t *testing.T) {
	b, _ := newPair(t, "")
	_, err := b.ListVehicles(context.Background())
	require.Error(t, err)
	assert.True(t, backend.IsAuth(err))
	assert.True(t, backend.IsAuth(b.VerifyToken(context.Background())))

	b.SetToken(demo.DefaultToken)
	assert.NoError(t, b.VerifyToken(context.Background()))
}

func TestBackendExchangeCredentials(t *testing.T) {
	b, _ := newPair(t, "")
	payload, err := b.ExchangeCredentials(context.Background(), demo.DemoUser, demo.DemoPassword)
	require.NoError(t, err)
	assert.Equal(t, demo.DefaultToken, backend.AccessToken(payload))

	_, err = b.ExchangeCredentials(context.Background(), "x", "y")
	assert.True(t, backend.IsAuth(err))
}

func TestBackendExecute(t *testing.T) {
	b, _ := newPair(t, demo.DefaultToken)
	res, err := b.Execute(context.Background(), backend.CommandHonk, "90000000000000002")
	require.NoError(t, err)
	assert.Equal(t, true, res.Section("response")["result"])

	_, err = b.Execute(context.Background(), backend.CommandHonk, "1")
	var apiErr *backend.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.StatusCode)

	_, err = b.Execute(context.Background(), "self_destruct", "90000000000000002")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 500, apiErr.StatusCode)
}

func TestBackendTimeoutWithoutResponder(t *testing.T) {
	useFakeBroker(t)
	b, err := NewBackend(Config{Broker: "tcp://localhost:1883", ClientID: "id", TimeoutMS: 20}, "tok")
	require.NoError(t, err)
	err = b.VerifyToken(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, backend.IsAuth(err))
}

func TestBackendIgnoresUnknownResponses(t *testing.T) {
	broker := useFakeBroker(t)
	b, err := NewBackend(Config{Broker: "tcp://localhost:1883", ClientID: "id"}, "tok")
	require.NoError(t, err)
	broker.deliver("etr/api/response/nobody", []byte(`{"request_id":"nobody","status":200}`), false)
	broker.deliver("etr/api/response/bad", []byte(`not json`), false)
	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Empty(t, b.pending)
}

func TestResponderUnknownOp(t *testing.T) {
	useFakeBroker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id"}
	r, err := NewResponder(ctx, cfg, demo.New())
	require.NoError(t, err)
	resp := r.handle(request{RequestID: "r1", Op: "reboot"})
	assert.Equal(t, 400, resp.Status)
}

func TestFramePublisherRetainsFrames(t *testing.T) {
	broker := useFakeBroker(t)
	pub, err := NewFramePublisher(Config{Broker: "tcp://localhost:1883", ClientID: "id"})
	require.NoError(t, err)
	defer pub.Close()

	err = pub.RecordFrames(coremetrics.FrameBatch{Frames: []model.Frame{
		{"id": "1", "state": "online"},
		{"state": "asleep"},
	}})
	require.NoError(t, err)

	raw := broker.retainedPayload("etr/vehicles/1")
	require.NotNil(t, raw)
	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "online", got["state"])
	assert.Len(t, broker.clients[0].publishes(), 1)
}

func TestMQTTSinkFactory(t *testing.T) {
	useFakeBroker(t)
	sink, err := coremetrics.NewMetricsSink([]factory.ModuleConfig{{
		Type: "mqtt",
		Conf: map[string]any{"broker": "tcp://localhost:1883", "client_id": "sink", "state_prefix": "fleet"},
	}})
	require.NoError(t, err)
	pub, ok := sink.(*FramePublisher)
	require.True(t, ok)
	assert.Equal(t, "fleet", pub.cfg.StatePrefix)

	_, err = coremetrics.NewMetricsSink([]factory.ModuleConfig{{Type: "mqtt"}})
	assert.Error(t, err)
}
