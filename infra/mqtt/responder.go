package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/etr/core/backend"
)

// Responder serves a backend.Backend over the request/response protocol. The
// token carried by each request is installed before the call, so one
// Responder serves a single client at a time.
type Responder struct {
	conn    *Conn
	cfg     Config
	backend backend.Backend
	ctx     context.Context
}

// NewResponder connects to the broker and answers requests with b until ctx
// is done.
func NewResponder(ctx context.Context, cfg Config, b backend.Backend) (*Responder, error) {
	cfg.SetDefaults()
	r := &Responder{cfg: cfg, backend: b, ctx: ctx}
	conn, err := dial(cfg, "mqtt_responder", subscription{
		topic:   cfg.RequestTopic,
		qos:     cfg.qos("request"),
		handler: r.onRequest,
	})
	if err != nil {
		return nil, fmt.Errorf("mqtt responder: %w", err)
	}
	r.conn = conn
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	return r, nil
}

func (r *Responder) onRequest(_ paho.Client, msg paho.Message) {
	var req request
	if err := decode(msg.Payload(), &req); err != nil {
		r.conn.log.Errorf("failed to decode request: %v", err)
		return
	}
	go r.serve(req)
}

func (r *Responder) serve(req request) {
	resp := r.handle(req)
	resp.RequestID = req.RequestID
	payload, err := json.Marshal(resp)
	if err != nil {
		r.conn.log.Errorf("encode response %s: %v", req.RequestID, err)
		return
	}
	if err := r.conn.publish(joinTopic(r.cfg.ResponsePrefix, req.RequestID), r.cfg.qos("response"), false, payload); err != nil {
		r.conn.log.Errorf("respond to %s: %v", req.RequestID, err)
	}
}

func (r *Responder) handle(req request) response {
	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.Timeout())
	defer cancel()
	if req.Op != OpExchangeCredentials {
		r.backend.SetToken(req.Token)
	}
	var (
		data any
		err  error
	)
	switch req.Op {
	case OpListVehicles:
		data, err = r.backend.ListVehicles(ctx)
	case OpVehicleDetail:
		data, err = r.backend.FetchDetail(ctx, argString(req.Args, 0))
	case OpVerifyToken:
		err = r.backend.VerifyToken(ctx)
	case OpExchangeCredentials:
		data, err = r.backend.ExchangeCredentials(ctx, argString(req.Args, 0), argString(req.Args, 1))
	case OpCommand:
		data, err = r.backend.Execute(ctx, req.Command, req.Args...)
	default:
		return response{Status: http.StatusBadRequest, Error: "unknown op " + req.Op}
	}
	if err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) {
			return response{Status: apiErr.StatusCode, Error: apiErr.Message}
		}
		return response{Status: http.StatusInternalServerError, Error: err.Error()}
	}
	return response{Status: http.StatusOK, Data: data}
}

func argString(args []any, i int) string {
	if i >= len(args) || args[i] == nil {
		return ""
	}
	return fmt.Sprint(args[i])
}
