package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/specialistvlad/slotjit/internal/buildserver"
	"github.com/specialistvlad/slotjit/internal/codegen"
	"github.com/specialistvlad/slotjit/internal/compiler"
	"github.com/specialistvlad/slotjit/internal/ctxlog"
	"github.com/specialistvlad/slotjit/internal/metrics"
	"github.com/specialistvlad/slotjit/internal/runtime"
	"github.com/specialistvlad/slotjit/internal/slots"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	ctx     context.Context
	config  *Config
	metrics *metrics.Metrics

	compiler     *compiler.Compiler
	scheduler    *slots.Scheduler
	backend      slots.Backend
	closeBackend func()
	buildServer  *buildserver.Server
	runtime      *runtime.Runtime

	httpServer *http.Server
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger and metrics registry.
// A backend that cannot be set up is a fatal startup error and panics.
func NewApp(outW io.Writer, cfg *Config) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	app := &App{
		outW:     outW,
		logger:   logger,
		ctx:      ctx,
		config:   cfg,
		metrics:  metrics.New(),
		compiler: compiler.New(),
	}

	backend, closeBackend, err := app.newBackend(ctx)
	if err != nil {
		panic(fmt.Errorf("failed to set up %s backend: %w", cfg.Backend, err))
	}
	app.backend = backend
	app.closeBackend = closeBackend
	logger.Debug("Build backend ready.", "backend", cfg.Backend)

	app.scheduler = slots.New(slots.Config{
		Name:      cfg.Target,
		Size:      cfg.Slots,
		Generator: codegen.Default{},
		Metrics:   app.metrics,
	}, backend)
	app.compiler.Register(cfg.Target, app.scheduler)
	logger.Debug("Slot scheduler registered.", "target", cfg.Target, "slots", cfg.Slots)

	if cfg.Serve {
		local, ok := backend.(buildserver.Compiler)
		if !ok {
			panic(fmt.Errorf("the %s backend cannot serve builds", cfg.Backend))
		}
		app.buildServer = buildserver.New(ctx, local)
	}

	return app
}

// Scheduler returns the application's slot scheduler. This is primarily for
// testing.
func (app *App) Scheduler() *slots.Scheduler {
	return app.scheduler
}

// Metrics returns the application's metrics.
func (app *App) Metrics() *metrics.Metrics {
	return app.metrics
}

func (app *App) close() {
	logger := ctxlog.FromContext(app.ctx)
	if app.buildServer != nil {
		app.buildServer.Close()
		logger.Debug("Build server closed.")
	}
	if app.closeBackend != nil {
		app.closeBackend()
	}
}
