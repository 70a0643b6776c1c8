// Package backendtest provides a scriptable backend for tests.
package backendtest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kilianp07/etr/core/backend"
	"github.com/kilianp07/etr/core/model"
)

// Fake is a Backend whose behaviour is set through its function fields.
// Nil fields fall back to a small in-memory fleet.
type Fake struct {
	ListFn     func(ctx context.Context) ([]model.Frame, error)
	DetailFn   func(ctx context.Context, id string) (model.Frame, error)
	VerifyFn   func(ctx context.Context, token string) error
	ExchangeFn func(ctx context.Context, user, password string) (map[string]any, error)
	ExecuteFn  func(ctx context.Context, name string, args ...any) (model.Frame, error)

	Vehicles []model.Frame

	mu    sync.Mutex
	token string

	Lists   atomic.Int32
	Details atomic.Int32
	Execs   atomic.Int32
}

var _ backend.Backend = (*Fake)(nil)

// New returns a fake holding token.
func New(token string, vehicles ...model.Frame) *Fake {
	return &Fake{token: token, Vehicles: vehicles}
}

// Vehicle builds a summary frame.
func Vehicle(id string, state model.VehicleState) model.Frame {
	return model.Frame{"id": id, "state": string(state), "display_name": "car " + id}
}

func (f *Fake) ListVehicles(ctx context.Context) ([]model.Frame, error) {
	f.Lists.Add(1)
	if f.ListFn != nil {
		return f.ListFn(ctx)
	}
	out := make([]model.Frame, len(f.Vehicles))
	copy(out, f.Vehicles)
	return out, nil
}

func (f *Fake) FetchDetail(ctx context.Context, id string) (model.Frame, error) {
	f.Details.Add(1)
	if f.DetailFn != nil {
		return f.DetailFn(ctx, id)
	}
	for _, v := range f.Vehicles {
		if v.ID() == id {
			return model.Frame{"id": id, "state": string(v.State()), "charge_state": map[string]any{"battery_level": 80}}, nil
		}
	}
	return nil, backend.NewAPIError(404, "not_found")
}

func (f *Fake) VerifyToken(ctx context.Context) error {
	if f.VerifyFn != nil {
		return f.VerifyFn(ctx, f.Token())
	}
	if f.Token() == "" {
		return backend.NewAPIError(401, "missing token")
	}
	return nil
}

func (f *Fake) ExchangeCredentials(ctx context.Context, user, password string) (map[string]any, error) {
	if f.ExchangeFn != nil {
		return f.ExchangeFn(ctx, user, password)
	}
	return map[string]any{"access_token": fmt.Sprintf("token-%s", user)}, nil
}

func (f *Fake) Execute(ctx context.Context, name string, args ...any) (model.Frame, error) {
	f.Execs.Add(1)
	if f.ExecuteFn != nil {
		return f.ExecuteFn(ctx, name, args...)
	}
	return model.Frame{"result": true, "command": name}, nil
}

func (f *Fake) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *Fake) SetToken(token string) {
	f.mu.Lock()
	f.token = token
	f.mu.Unlock()
}
