package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/specialistvlad/burstqueue/internal/ctxlog"
	"github.com/specialistvlad/burstqueue/internal/object"
)

// healthHandler reports liveness and the number of live runtime objects.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(a.ctx)
	logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
	fmt.Fprintf(w, "live_objects %d\n", object.Live.Count())
}

// healthCheckServer initializes and runs the health check HTTP server.
func (a *App) healthCheckServer() {
	logger := ctxlog.FromContext(a.ctx)
	logger.Debug("Configuring health check server.")
	if a.config.HealthcheckPort <= 0 {
		logger.Debug("Health check server not started: disabled")
		return
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)

	addr := fmt.Sprintf(":%d", a.config.HealthcheckPort)
	a.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func(srv *http.Server) {
		logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health check server failed unexpectedly", "error", err)
		}
	}(a.httpServer)
}

func (a *App) closeHealthCheckServer() error {
	logger := ctxlog.FromContext(a.ctx)
	if a.httpServer == nil {
		logger.Debug("Health check server was not running.")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(a.ctx), 5*time.Second)
	defer cancel()

	logger.Info("🩺 Shutting down health check server...")
	err := a.httpServer.Shutdown(ctx)
	a.httpServer = nil
	if err != nil {
		logger.Error("Health check server shutdown failed", "error", err)
		return err
	}
	logger.Debug("Health check server shut down gracefully.")
	return nil
}
