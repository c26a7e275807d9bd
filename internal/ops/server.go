// Package ops serves the operational HTTP endpoints: health probes and
// Prometheus metrics.
package ops

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"egress-gate/internal/config"
	"egress-gate/internal/logger"
)

// ReadyFunc reports whether the proxy listener is accepting connections.
type ReadyFunc func() bool

// Server is the monitoring HTTP server, separate from the proxy listener
// so probes and scrapes never compete with proxied traffic.
type Server struct {
	cfg     config.MonitoringConfig
	echo    *echo.Echo
	log     *slog.Logger
	ready   ReadyFunc
	version string
}

// NewServer builds the ops server and registers its routes.
func NewServer(cfg config.MonitoringConfig, version string, ready ReadyFunc, log *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		cfg:     cfg,
		echo:    e,
		log:     logger.WithComponent(log, "ops"),
		ready:   ready,
		version: version,
	}

	e.GET("/health", s.healthHandler)
	e.GET("/health/ready", s.readyHandler)
	e.GET("/health/live", s.liveHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return s
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(s.cfg.Addr)
	}()

	s.log.Info("ops server listening", "addr", s.cfg.Addr)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}

func (s *Server) healthHandler(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "egress-gate",
		"version":   s.version,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) readyHandler(ctx echo.Context) error {
	if !s.ready() {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not_ready",
			"error":  "proxy listener is not accepting connections",
		})
	}
	return ctx.JSON(http.StatusOK, map[string]interface{}{
		"status": "ready",
	})
}

func (s *Server) liveHandler(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]interface{}{
		"status": "alive",
	})
}
