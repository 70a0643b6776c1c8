package monitoring

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/kilianp07/etr/config"
	"github.com/kilianp07/etr/core/engine"
	coremon "github.com/kilianp07/etr/core/monitoring"
)

// secretKeys are tag and extra keys whose values never leave the process.
var secretKeys = []string{"token", "password", "secret", "authorization"}

const redacted = "[redacted]"

// serviceTags are set on every event of the hub.
var serviceTags = map[string]string{
	"service":        "etr",
	"engine_version": engine.Version,
}

// NewSentryMonitor builds a Monitor reporting to its own Sentry hub. An empty
// DSN yields a NopMonitor.
func NewSentryMonitor(cfg config.SentryConfig) (coremon.Monitor, error) {
	if cfg.DSN == "" {
		return coremon.NopMonitor{}, nil
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		TracesSampleRate: cfg.TracesSampleRate,
		AttachStacktrace: true,
		BeforeSend:       scrubEvent,
	})
	if err != nil {
		return nil, err
	}
	scope := sentry.NewScope()
	scope.SetTags(serviceTags)
	return &sentryMonitor{hub: sentry.NewHub(client, scope)}, nil
}

type sentryMonitor struct {
	hub *sentry.Hub
}

// CaptureException reports err with tags attached to this event only.
// Cancellations are shutdown noise and are not reported.
func (s *sentryMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		s.hub.CaptureException(err)
	})
}

func (s *sentryMonitor) Recover() {
	if r := recover(); r != nil {
		s.hub.Recover(r)
		s.hub.Flush(2 * time.Second)
		panic(r)
	}
}

func (s *sentryMonitor) Flush(timeout time.Duration) { s.hub.Flush(timeout) }

// scrubEvent blanks credential values carried in tags or extras.
func scrubEvent(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	if event == nil {
		return nil
	}
	for k := range event.Tags {
		if isSecret(k) {
			event.Tags[k] = redacted
		}
	}
	for k := range event.Extra {
		if isSecret(k) {
			event.Extra[k] = redacted
		}
	}
	return event
}

func isSecret(key string) bool {
	key = strings.ToLower(key)
	for _, s := range secretKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}
