// Package app assembles the server from a loaded configuration.
package app

import (
	"context"
	"fmt"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"example.com/chunkcast/internal/broadcast"
	"example.com/chunkcast/internal/config"
	"example.com/chunkcast/internal/handlers"
	"example.com/chunkcast/internal/logger"
	"example.com/chunkcast/internal/metrics"
	"example.com/chunkcast/internal/reaper"
	"example.com/chunkcast/internal/router"
	"example.com/chunkcast/internal/server"
)

// App owns every long-lived component of a running server.
type App struct {
	Server      *server.Server
	Broadcaster *broadcast.Broadcaster
	Reaper      *reaper.Reaper // nil when disabled
	Metrics     *metrics.Metrics
	Registry    *prometheus.Registry

	log *logger.Logger
}

// New wires the broadcaster, reaper, metrics, handlers and router behind a
// server. Nothing is started.
func New(cfg *config.Config, lg *logger.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if lg == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg)
	b := broadcast.New(lg, m)

	var rp *reaper.Reaper
	if cfg.Reaper.IsEnabled() {
		rp = reaper.New(cfg.Reaper.IdleTimeoutDuration(), cfg.Reaper.IntervalDuration(), lg, m)
	}

	registry := server.NewHandlerRegistry()
	if err := handlers.Register(registry); err != nil {
		return nil, fmt.Errorf("registering handlers: %w", err)
	}

	var routes []config.Route
	if cfg.Routing != nil {
		routes = cfg.Routing.Routes
	}
	env := &server.Env{
		Log:         lg,
		Metrics:     m,
		Gatherer:    reg,
		Broadcaster: b,
		Reaper:      rp,
		Writer:      cfg.Writer,
	}
	rt, err := router.NewRouter(routes, registry, env)
	if err != nil {
		return nil, fmt.Errorf("initializing router: %w", err)
	}

	srv, err := server.NewServer(cfg, lg, rt)
	if err != nil {
		return nil, fmt.Errorf("initializing server: %w", err)
	}
	// Streaming handlers return once their writers close.
	srv.BeforeShutdown(func() {
		if rp != nil {
			rp.Stop()
		}
		b.Close()
	})

	return &App{
		Server:      srv,
		Broadcaster: b,
		Reaper:      rp,
		Metrics:     m,
		Registry:    reg,
		log:         lg,
	}, nil
}

// Run starts the reaper and serves on the configured address until
// shutdown.
func (a *App) Run() error {
	stop := a.startReaper()
	defer stop()
	return a.Server.Start()
}

// Serve is Run on an existing listener.
func (a *App) Serve(ln net.Listener) error {
	stop := a.startReaper()
	defer stop()
	return a.Server.Serve(ln)
}

// Shutdown stops the server gracefully.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Server.Shutdown(ctx)
}

func (a *App) startReaper() func() {
	if a.Reaper == nil {
		return func() {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.Reaper.Start(ctx)
	a.log.Info("Idle reaper started")
	return func() {
		cancel()
		a.Reaper.Stop()
	}
}
