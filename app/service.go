package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/kilianp07/etr/api/vehicles"
	"github.com/kilianp07/etr/app/plugins"
	"github.com/kilianp07/etr/config"
	"github.com/kilianp07/etr/core/backend"
	"github.com/kilianp07/etr/core/engine"
	"github.com/kilianp07/etr/core/events"
	coremetrics "github.com/kilianp07/etr/core/metrics"
	coremon "github.com/kilianp07/etr/core/monitoring"
	"github.com/kilianp07/etr/core/vehiclestatus"
	"github.com/kilianp07/etr/infra/logger"
	"github.com/kilianp07/etr/infra/metrics"
	"github.com/kilianp07/etr/infra/monitoring"
	"github.com/kilianp07/etr/infra/statusstore"
	"github.com/kilianp07/etr/internal/eventbus"
)

const shutdownTimeout = 5 * time.Second

// Service wires the engine to its backend, metrics sinks, status store and
// HTTP API.
type Service struct {
	Engine *engine.Engine
	Store  vehiclestatus.Store

	cfg  *config.Config
	sink coremetrics.MetricsSink
	log  logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	closers []func()
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logg := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	b, err := plugins.NewBackend(cfg, cfg.Backend.Mode)
	if err != nil {
		return nil, fmt.Errorf("backend: %w", err)
	}
	eng, err := engine.New(b, engine.Options{
		PollRate:          cfg.Engine.PollRate(),
		Workers:           cfg.Engine.Workers,
		DetailParallelism: cfg.Engine.DetailParallelism,
		Strict:            cfg.Engine.StrictEvents,
		Logger:            logger.New("engine"),
	})
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	store, closeStore := newStore(cfg.Status)

	ctx, cancel := context.WithCancel(context.Background())
	svc := &Service{
		Engine:  eng,
		Store:   store,
		closers: []func(){closeStore},
		cfg:     cfg,
		sink:    sink,
		log:     logg,
		ctx:     ctx,
		cancel:  cancel,
	}
	if err := svc.registerHandlers(); err != nil {
		cancel()
		return nil, err
	}
	return svc, nil
}

func newStore(cfg config.StatusConfig) (vehiclestatus.Store, func()) {
	if cfg.Store != config.StatusRedis {
		return vehiclestatus.NewMemoryStore(), func() {}
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	return statusstore.NewRedisStore(rdb, cfg.TTL(), logger.New("status_store")), func() { _ = rdb.Close() }
}

func (s *Service) registerHandlers() error {
	handlers := map[eventbus.Name]eventbus.Handler{
		events.NewFramesReady: eventbus.Func(func(ev eventbus.Event) error {
			s.Store.Update(events.Frames(ev), time.Now())
			return nil
		}),
		events.CommandCompleted: eventbus.Func(func(ev eventbus.Event) error {
			out, ok := events.AsCommandOutcome(ev)
			if !ok {
				return fmt.Errorf("malformed %s event", ev.Name)
			}
			s.Store.Complete(vehiclestatus.LastCommand{
				ID: out.ID, Name: out.Name, OK: out.OK, Error: out.Error, Timestamp: time.Now(),
			})
			return nil
		}),
		events.RequestDemoApi: eventbus.Func(func(eventbus.Event) error {
			return s.switchTo(config.BackendDemo)
		}),
		events.RequestRealApi: eventbus.Func(func(eventbus.Event) error {
			return s.switchTo(config.BackendMQTT)
		}),
		events.PollStopped: eventbus.Func(func(ev eventbus.Event) error {
			if err := events.StopError(ev); err != nil {
				s.log.Errorf("polling stopped: %v", err)
			}
			return nil
		}),
	}
	for name, h := range handlers {
		if err := s.Engine.Register(name, h); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	return nil
}

// switchTo builds a backend for mode and installs it. The replaced backend
// is closed when it holds a connection.
func (s *Service) switchTo(mode string) error {
	next, err := plugins.NewBackend(s.cfg, mode)
	if err != nil {
		return fmt.Errorf("switch to %s: %w", mode, err)
	}
	prev, err := s.Engine.SwitchBackend(s.ctx, next, mode == config.BackendDemo)
	if prev != nil {
		closeBackend(prev)
	}
	if err != nil && prev == nil {
		closeBackend(next)
	}
	return err
}

func closeBackend(b backend.Backend) {
	if c, ok := b.(interface{ Close() }); ok {
		c.Close()
	}
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	vehicles.Routes(r, s.Store, s.Engine)
	return r
}

// Run starts polling and the optional HTTP servers, then blocks until the
// context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := metrics.StartEventCollector(ctx, s.Engine.Bus(), s.sink); err != nil {
		return fmt.Errorf("metrics collector: %w", err)
	}
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if addr := s.cfg.API.Addr; addr != "" {
		go func() {
			if err := s.serveAPI(ctx, addr); err != nil {
				s.log.Errorf("api server: %v", err)
			}
		}()
	}
	if err := s.Engine.PollStart(); err != nil {
		return fmt.Errorf("start polling: %w", err)
	}
	<-ctx.Done()
	return nil
}

func (s *Service) serveAPI(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("api server shutdown: %v", err)
		}
	}()
	s.log.Infof("api listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.Engine.Close(ctx)
	s.cancel()
	closeBackend(s.Engine.Backend())
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	for _, c := range s.closers {
		c()
	}
	coremon.Flush(2 * time.Second)
	return err
}
