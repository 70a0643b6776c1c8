// Package credentials changes the backend handle and its credential. Every
// mutation runs as an exclusive gate operation, after in-flight readers have
// drained.
package credentials

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kilianp07/etr/core/backend"
	"github.com/kilianp07/etr/core/events"
	"github.com/kilianp07/etr/core/gate"
	"github.com/kilianp07/etr/core/logger"
	"github.com/kilianp07/etr/core/monitoring"
	"github.com/kilianp07/etr/internal/eventbus"
	"github.com/kilianp07/etr/internal/workerpool"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) { c.log = logger.OrNop(l) }
}

// WithIDGenerator replaces the correlation id source.
func WithIDGenerator(fn func() string) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// Coordinator owns credential loading and backend switching.
type Coordinator struct {
	handle *gate.Shared[backend.Backend]
	bus    *eventbus.Bus
	pool   *workerpool.Pool
	log    logger.Logger
	newID  func() string
}

// New creates a coordinator running credential loads on pool.
func New(handle *gate.Shared[backend.Backend], bus *eventbus.Bus, pool *workerpool.Pool, opts ...Option) *Coordinator {
	c := &Coordinator{
		handle: handle,
		bus:    bus,
		pool:   pool,
		log:    logger.Nop{},
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate checks that either a token or a user name and password pair is
// present.
func Validate(user, password, token string) error {
	if token != "" {
		return nil
	}
	if user == "" {
		return &ValidationError{Field: "user"}
	}
	if password == "" {
		return &ValidationError{Field: "password"}
	}
	return nil
}

// LoadCredentials validates its arguments synchronously, then installs the
// credential on a worker task and reports the outcome through
// CredentialsResult. A token takes precedence over user and password.
func (c *Coordinator) LoadCredentials(user, password, token string) (string, error) {
	if err := Validate(user, password, token); err != nil {
		return "", err
	}
	id := c.newID()
	err := c.pool.Submit(func(ctx context.Context) {
		payload, err := c.load(ctx, user, password, token)
		out := events.CredentialsOutcome{ID: id}
		if err != nil {
			c.log.Warnf("credential load %s failed: %v", id, err)
			out.Error = err.Error()
		} else {
			c.log.Infof("credential load %s succeeded", id)
			out.OK = true
			out.Payload = payload
		}
		c.publish(out)
	})
	if err != nil {
		c.publish(events.CredentialsOutcome{ID: id, Error: err.Error()})
	}
	return id, nil
}

func (c *Coordinator) load(ctx context.Context, user, password, token string) (map[string]any, error) {
	var payload map[string]any
	err := c.handle.Exclusive(ctx, func(b backend.Backend) (next backend.Backend, err error) {
		defer func() {
			if r := recover(); r != nil {
				next, err = b, monitoring.CapturePanic("credentials", r)
			}
		}()
		if token != "" {
			b.SetToken(token)
			if err := b.VerifyToken(ctx); err != nil {
				return b, fmt.Errorf("verify token: %w", err)
			}
			payload = map[string]any{"access_token": token}
			return b, nil
		}
		p, err := b.ExchangeCredentials(ctx, user, password)
		if err != nil {
			return b, fmt.Errorf("exchange credentials: %w", err)
		}
		tok := backend.AccessToken(p)
		if tok == "" {
			return b, fmt.Errorf("exchange credentials: %w", backend.NewAPIError(401, "no access token in response"))
		}
		b.SetToken(tok)
		payload = p
		return b, nil
	})
	return payload, err
}

func (c *Coordinator) publish(out events.CredentialsOutcome) {
	if err := c.bus.Raise(events.CredentialsResult, events.CredentialsResultArgs(out)...); err != nil {
		c.log.Errorf("raise %s for %s: %v", events.CredentialsResult, out.ID, err)
	}
}

// SwitchBackend replaces the shared backend once readers have drained and
// raises ApiSwitched. It returns the backend that was replaced, which no
// reader uses any more.
func (c *Coordinator) SwitchBackend(ctx context.Context, next backend.Backend, isDemo bool) (backend.Backend, error) {
	if next == nil {
		return nil, fmt.Errorf("switch backend: nil backend")
	}
	var prev backend.Backend
	err := c.handle.Exclusive(ctx, func(cur backend.Backend) (backend.Backend, error) {
		prev = cur
		return next, nil
	})
	if err != nil {
		return nil, fmt.Errorf("switch backend: %w", err)
	}
	c.log.Infof("backend switched (demo=%t)", isDemo)
	return prev, c.bus.Raise(events.ApiSwitched, isDemo)
}

// ResetCredential clears the credential of the current backend.
func (c *Coordinator) ResetCredential(ctx context.Context) error {
	err := c.handle.Exclusive(ctx, func(b backend.Backend) (backend.Backend, error) {
		b.SetToken("")
		return b, nil
	})
	if err != nil {
		return fmt.Errorf("reset credential: %w", err)
	}
	c.log.Infof("credential reset")
	return nil
}

// CurrentToken returns the credential of the current backend.
func (c *Coordinator) CurrentToken() string {
	return c.handle.Peek().Token()
}
