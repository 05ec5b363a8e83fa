// Package app wires the attune subsystems into a running service.
//
// The App struct owns the full lifecycle: New builds telemetry, the optional
// PostgreSQL archive and operator hub, the alert dispatcher and the pipeline,
// and mounts the HTTP surface. Run serves until its context ends, Reload
// applies hot-reloadable config changes, and Shutdown tears everything down
// in reverse-init order.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/attune/internal/alert"
	"github.com/MrWong99/attune/internal/archive/postgres"
	"github.com/MrWong99/attune/internal/config"
	"github.com/MrWong99/attune/internal/health"
	"github.com/MrWong99/attune/internal/httpapi"
	"github.com/MrWong99/attune/internal/observe"
	"github.com/MrWong99/attune/internal/operator"
	"github.com/MrWong99/attune/internal/pipeline"
	"github.com/MrWong99/attune/internal/resilience"
	"github.com/MrWong99/attune/internal/session"
)

// OperatorPath is where the operator console websocket is mounted.
const OperatorPath = "/v1/operator"

// App owns all subsystem lifetimes.
type App struct {
	cfg   *config.Config
	level *slog.LevelVar

	// Subsystems, initialised in New and torn down in Shutdown.
	provider   *observe.Provider
	metrics    *observe.Metrics
	store      *postgres.Store
	hub        *operator.Hub
	dispatcher *alert.Dispatcher
	pipeline   *pipeline.Pipeline
	handler    http.Handler
	server     *http.Server

	registry *config.Registry

	// closers run in reverse order during Shutdown.
	closers []func(context.Context) error

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithLevelVar lets Reload change the log level of a handler built on v.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithPublisher registers an extra alert publisher factory under typ. Built-in
// types registered by New take precedence.
func WithPublisher(typ string, factory config.PublisherFactory) Option {
	return func(a *App) { a.registry.RegisterPublisher(typ, factory) }
}

// New creates an App from cfg. Zero-valued tunables get their defaults.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	config.ApplyDefaults(cfg)
	a := &App{
		cfg:      cfg,
		level:    new(slog.LevelVar),
		registry: config.NewRegistry(),
	}
	for _, o := range opts {
		o(a)
	}
	a.level.Set(cfg.Server.LogLevel.Slog())

	if err := a.init(ctx); err != nil {
		// Release whatever was already started.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = a.runClosers(shutdownCtx)
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	// ── 1. Telemetry ─────────────────────────────────────────────────────
	if err := a.initTelemetry(ctx); err != nil {
		return fmt.Errorf("app: init telemetry: %w", err)
	}

	// ── 2. Archive ───────────────────────────────────────────────────────
	if err := a.initArchive(ctx); err != nil {
		return fmt.Errorf("app: init archive: %w", err)
	}

	// ── 3. Operator hub ──────────────────────────────────────────────────
	if a.cfg.Operator.Enabled {
		a.hub = operator.NewHub(
			operator.WithWriteTimeout(a.cfg.Operator.WriteTimeout),
			operator.WithOriginPatterns(a.cfg.Operator.OriginPatterns...),
			operator.WithMetrics(a.metrics),
		)
		a.closers = append(a.closers, func(context.Context) error {
			a.hub.Close()
			return nil
		})
	}

	// ── 4. Alert dispatcher ──────────────────────────────────────────────
	if err := a.initAlerts(); err != nil {
		return fmt.Errorf("app: init alerts: %w", err)
	}

	// ── 5. Pipeline ──────────────────────────────────────────────────────
	if err := a.initPipeline(); err != nil {
		return fmt.Errorf("app: init pipeline: %w", err)
	}
	if a.hub != nil {
		a.hub.SetAcknowledger(a.pipeline)
	}

	// ── 6. HTTP surface ──────────────────────────────────────────────────
	a.initHTTP()
	return nil
}

func (a *App) initTelemetry(ctx context.Context) error {
	p, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: a.cfg.Telemetry.ServiceName})
	if err != nil {
		return err
	}
	a.provider = p
	a.closers = append(a.closers, p.Shutdown)

	m, err := observe.NewMetrics(p.MeterProvider())
	if err != nil {
		return err
	}
	a.metrics = m
	return nil
}

func (a *App) initArchive(ctx context.Context) error {
	dsn := a.cfg.Archive.PostgresDSN
	if dsn == "" {
		slog.Info("archive disabled")
		return nil
	}
	var opts []postgres.Option
	if n := a.cfg.Archive.MaxConns; n > 0 {
		opts = append(opts, postgres.WithMaxConns(n))
	}
	store, err := postgres.NewStore(ctx, dsn, opts...)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, func(context.Context) error {
		store.Close()
		return nil
	})
	slog.Info("archive connected")
	return nil
}

func (a *App) initAlerts() error {
	a.registerPublishers()
	targets, err := a.registry.BuildTargets(a.cfg.Alerts.Targets)
	if err != nil {
		return err
	}
	ac := a.cfg.Alerts
	d, err := alert.NewDispatcher(targets,
		alert.WithBackoff(ac.InitialBackoff, ac.MaxBackoff),
		alert.WithBreaker(resilience.CircuitBreakerConfig{
			MaxFailures:  ac.MaxFailures,
			ResetTimeout: ac.ResetTimeout,
		}),
		alert.WithMetrics(a.metrics),
	)
	if err != nil {
		return err
	}
	a.dispatcher = d
	a.closers = append(a.closers, d.Close)
	for _, t := range targets {
		slog.Info("alert target ready", "target", t.Name, "publishers", len(t.Publishers), "turns", t.Turns)
	}
	return nil
}

// registerPublishers wires the built-in publisher types to the subsystems
// created so far.
func (a *App) registerPublishers() {
	a.registry.RegisterPublisher(config.PublisherLog, func(config.PublisherEntry) (alert.Publisher, error) {
		return alert.NewLogPublisher(slog.Default()), nil
	})
	a.registry.RegisterPublisher(config.PublisherPostgres, func(config.PublisherEntry) (alert.Publisher, error) {
		if a.store == nil {
			return nil, errors.New("postgres publisher requires archive.postgres_dsn")
		}
		return a.store, nil
	})
	a.registry.RegisterPublisher(config.PublisherOperator, func(config.PublisherEntry) (alert.Publisher, error) {
		if a.hub == nil {
			return nil, errors.New("operator publisher requires operator.enabled")
		}
		return a.hub, nil
	})
}

func (a *App) initPipeline() error {
	tun, err := Tunables(a.cfg)
	if err != nil {
		return err
	}
	mc := a.cfg.Memory
	p, err := pipeline.New(
		pipeline.WithTunables(tun),
		pipeline.WithSink(a.dispatcher),
		pipeline.WithMetrics(a.metrics),
		pipeline.WithChunkSize(a.cfg.Pipeline.ChunkSize),
		pipeline.WithSampleRate(a.cfg.Pipeline.SampleRate),
		pipeline.WithMemoryOptions(
			session.WithRetention(mc.Retention),
			session.WithStabilityWindow(mc.StabilityWindow),
			session.WithTrendWindow(mc.TrendWindow),
			session.WithMaxEntries(mc.MaxEntries),
		),
	)
	if err != nil {
		return err
	}
	a.pipeline = p
	return nil
}

func (a *App) initHTTP() {
	mux := http.NewServeMux()

	var apiOpts []httpapi.Option
	if a.store != nil {
		apiOpts = append(apiOpts, httpapi.WithArchive(a.store))
	}
	httpapi.New(a.pipeline, apiOpts...).Register(mux)

	checks := []health.Checker{
		health.Backlog("alerts", a.dispatcher.Backlog, a.cfg.Alerts.MaxBacklog),
	}
	if a.store != nil {
		checks = append(checks, health.Ping("archive", a.store.Ping))
	}
	health.New(checks...).Register(mux)

	if !a.cfg.Telemetry.DisableMetrics {
		mux.Handle("GET /metrics", a.provider.Handler())
	}
	if a.hub != nil {
		mux.Handle("GET "+OperatorPath, a.hub)
	}

	a.handler = observe.Middleware(a.metrics)(mux)
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Pipeline returns the turn orchestrator.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// Run serves HTTP and sweeps expired sessions until ctx is cancelled or the
// listener fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()
	slog.Info("http server listening", "addr", a.cfg.Server.ListenAddr, "tls", a.cfg.Server.TLS != nil)

	go a.purgeLoop(ctx)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	}
}

func (a *App) purgeLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Memory.PurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.pipeline.PurgeExpired(ctx)
		}
	}
}

// Reload applies a changed config. It has the [config.ChangeFunc] signature so
// it can be handed to [config.NewWatcher].
func (a *App) Reload(_, newCfg *config.Config, d config.ConfigDiff) {
	if d.LogLevelChanged {
		a.level.Set(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.HotReload() {
		tun, err := Tunables(newCfg)
		if err == nil {
			err = a.pipeline.Reconfigure(tun)
		}
		if err != nil {
			slog.Error("config reload rejected", "err", err)
		} else {
			slog.Info("pipeline reconfigured", "sections", d.Sections())
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "sections", d.RestartRequired)
	}
}

// Shutdown stops the HTTP server and tears down all subsystems in
// reverse-init order. Pending alerts are drained until ctx expires.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("http server shutdown error", "err", err)
			}
		}
		shutdownErr = a.runClosers(ctx)
		if shutdownErr == nil {
			slog.Info("shutdown complete")
		}
	})
	return shutdownErr
}

func (a *App) runClosers(ctx context.Context) error {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			slog.Warn("shutdown deadline exceeded", "remaining", i+1)
			return err
		}
		if err := a.closers[i](ctx); err != nil {
			slog.Warn("closer error", "index", i, "err", err)
		}
	}
	a.closers = nil
	return nil
}
