package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"ofsync/internal/infrastructure/postgres/listener"
	"ofsync/internal/interfaces/scheduler"
	"ofsync/internal/shared/config"
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Handler http.Handler
	Addr    string
}

// StartServer creates and starts the API server.
func StartServer(scfg ServerConfig, logger *slog.Logger) *http.Server {
	srv := &http.Server{
		Addr:         scfg.Addr,
		Handler:      scfg.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP server starting", "addr", scfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}

// GracefulShutdown stops accepting requests, then drains the listener and the
// scheduler so no sync is cut off mid-write.
func GracefulShutdown(srv *http.Server, sched *scheduler.Scheduler, consentListener *listener.ConsentListener, timeout time.Duration, logger *slog.Logger) {
	logger.Info("server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("error shutting down HTTP server", "error", err)
	}

	if consentListener != nil {
		consentListener.Stop()
	}

	if sched != nil {
		sched.Shutdown(timeout)
	}

	logger.Info("server stopped")
}

// NewServerConfigFromConfig creates ServerConfig from application config.
func NewServerConfigFromConfig(handler http.Handler, cfg *config.Config) ServerConfig {
	return ServerConfig{
		Handler: handler,
		Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
	}
}
