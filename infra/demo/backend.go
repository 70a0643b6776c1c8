// Package demo provides an in-memory backend with a fixed fleet, used in
// demo mode and as a local stand-in for the remote service.
package demo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/etr/core/backend"
	"github.com/kilianp07/etr/core/logger"
	"github.com/kilianp07/etr/core/model"
)

// DefaultToken is installed by New unless WithToken overrides it.
const DefaultToken = "Demo Token"

// Demo credentials accepted by ExchangeCredentials.
const (
	DemoUser     = "a"
	DemoPassword = "b"
)

// Option configures the demo backend.
type Option func(*Backend)

// WithToken sets the initial credential. An empty token forces a login.
func WithToken(tok string) Option {
	return func(b *Backend) { b.token = tok }
}

// WithLatency delays every call, to make gate contention observable.
func WithLatency(d time.Duration) Option {
	return func(b *Backend) { b.latency = d }
}

// WithLogger sets the backend logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Backend) { b.log = logger.OrNop(l) }
}

// Backend serves a fixed fleet from memory.
type Backend struct {
	mu       sync.RWMutex
	token    string
	latency  time.Duration
	log      logger.Logger
	vehicles []model.Frame
	details  map[string]model.Frame
}

var _ backend.Backend = (*Backend)(nil)

// New returns a demo backend holding DefaultToken.
func New(opts ...Option) *Backend {
	vehicles, details := defaultFleet()
	b := &Backend{
		token:    DefaultToken,
		log:      logger.Nop{},
		vehicles: vehicles,
		details:  details,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) wait(ctx context.Context) error {
	if b.latency > 0 {
		t := time.NewTimer(b.latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return ctx.Err()
}

func (b *Backend) authorize(ctx context.Context) error {
	if err := b.wait(ctx); err != nil {
		return err
	}
	if b.Token() == "" {
		return backend.NewAPIError(401, "authorization_required")
	}
	return nil
}

func (b *Backend) ListVehicles(ctx context.Context) ([]model.Frame, error) {
	if err := b.authorize(ctx); err != nil {
		return nil, err
	}
	b.log.Debugf("listing %d demo vehicles", len(b.vehicles))
	out := make([]model.Frame, len(b.vehicles))
	for i, v := range b.vehicles {
		out[i] = cloneFrame(v)
	}
	return out, nil
}

func (b *Backend) FetchDetail(ctx context.Context, id string) (model.Frame, error) {
	if err := b.authorize(ctx); err != nil {
		return nil, err
	}
	d, ok := b.details[id]
	if !ok {
		return nil, backend.NewAPIError(404, "not_found")
	}
	return cloneFrame(d), nil
}

func (b *Backend) VerifyToken(ctx context.Context) error {
	return b.authorize(ctx)
}

func (b *Backend) ExchangeCredentials(ctx context.Context, user, password string) (map[string]any, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	if user != DemoUser || password != DemoPassword {
		return nil, backend.NewAPIError(401, "user name or password not valid")
	}
	return map[string]any{
		"access_token":  DefaultToken,
		"token_type":    "bearer",
		"expires_in":    3888000,
		"refresh_token": "demo-refresh",
		"created_at":    time.Now().Unix(),
	}, nil
}

func (b *Backend) Execute(ctx context.Context, name string, args ...any) (model.Frame, error) {
	if err := b.authorize(ctx); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("%s: vehicle id required", name)
	}
	id := fmt.Sprint(args[0])
	b.log.Debugf("executing %s on demo vehicle %s", name, id)
	switch name {
	case backend.CommandVehicleData:
		return b.FetchDetail(ctx, id)
	case backend.CommandWakeUp:
		s, ok := b.find(id)
		if !ok {
			return nil, backend.NewAPIError(404, "not_found")
		}
		return s, nil
	case backend.CommandHonk, backend.CommandFlashLights:
		if _, ok := b.find(id); !ok {
			return nil, backend.NewAPIError(404, "not_found")
		}
		return model.Frame{"response": map[string]any{"reason": "", "result": true}}, nil
	default:
		return nil, fmt.Errorf("%w: %s", backend.ErrUnknownCommand, name)
	}
}

func (b *Backend) find(id string) (model.Frame, bool) {
	for _, v := range b.vehicles {
		if v.ID() == id {
			return cloneFrame(v), true
		}
	}
	return nil, false
}

func (b *Backend) Token() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.token
}

func (b *Backend) SetToken(tok string) {
	b.mu.Lock()
	b.token = tok
	b.mu.Unlock()
}
