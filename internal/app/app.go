package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/specialistvlad/burstqueue/internal/ctxlog"
	"github.com/specialistvlad/burstqueue/internal/kernels"
	"github.com/specialistvlad/burstqueue/internal/workload"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW       io.Writer
	ctx        context.Context
	logger     *slog.Logger
	config     *Config
	kernels    *kernels.Kernels
	workload   *workload.Workload
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It builds an isolated
// logger, registers the builtin kernels when k is nil and loads the workload.
// A workload that fails to load is a fatal startup error and panics.
func NewApp(outW io.Writer, cfg *Config, k *kernels.Kernels) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	if k == nil {
		k = kernels.Builtins()
	}
	logger.Debug("Kernels registered.", "count", len(k.Names()), "names", k.Names())

	a := &App{
		outW:    outW,
		ctx:     ctx,
		logger:  logger,
		config:  cfg,
		kernels: k,
	}
	if err := a.LoadWorkload(); err != nil {
		panic(fmt.Errorf("failed to load workload: %w", err))
	}
	return a
}

// Kernels returns the application's kernel registry. This is primarily for
// testing.
func (a *App) Kernels() *kernels.Kernels {
	return a.kernels
}

// Workload returns the loaded workload.
func (a *App) Workload() *workload.Workload {
	return a.workload
}
