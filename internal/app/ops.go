package app

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/rbright/jarvis/internal/health"
	"github.com/rbright/jarvis/internal/observe"
)

const opsShutdownTimeout = 5 * time.Second

// newOpsServer serves Prometheus metrics and the health endpoints.
func newOpsServer(provider *observe.Provider, deps ...health.Dependency) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", provider.Handler())
	health.New(deps...).Register(mux)

	return &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// serveOps blocks until ctx ends, then shuts the server down gracefully.
func serveOps(ctx context.Context, srv *http.Server, listener net.Listener, logger *slog.Logger) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opsShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("ops server shutdown", "error", err.Error())
			_ = srv.Close()
		}
	}()

	logger.Info("ops server listening", "addr", listener.Addr().String())
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
