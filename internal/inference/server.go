// Package inference runs a development inference service that speaks the
// frame protocol, with a mock segmenter standing in for the model.
package inference

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/segstream/domain/repositories"
	"github.com/satriahrh/segstream/internal/api"
	"github.com/satriahrh/segstream/internal/config"
	"github.com/satriahrh/segstream/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

// Server is the echo application plus its websocket hub
type Server struct {
	cfg    config.ServerConfig
	echo   *echo.Echo
	hub    *websocket.Hub
	logger *zap.Logger
}

// NewServer wires routes and middleware; nothing listens until Start
func NewServer(cfg config.ServerConfig, processor repositories.FrameProcessor, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("HTTP request",
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency))
			return nil
		},
	}))

	hub := websocket.NewHub(processor, logger)
	hub.SetProcessTimeout(cfg.ProcessTimeout)

	api.InitRoutes(e, hub, []byte(cfg.JWTSecret), logger)

	return &Server{
		cfg:    cfg,
		echo:   e,
		hub:    hub,
		logger: logger,
	}
}

// Handler exposes the routes, e.g. for httptest
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Hub returns the websocket hub
func (s *Server) Hub() *websocket.Hub {
	return s.hub
}

// RunHub runs the hub (and the idle reaper, if configured) until ctx ends.
// Start calls it; tests serving Handler through httptest call it directly.
func (s *Server) RunHub(ctx context.Context) {
	if s.cfg.IdleTimeout > 0 {
		reaper := websocket.NewIdleReaper(s.hub, s.cfg.IdleTimeout, 0, s.logger)
		reaper.Start()
		defer reaper.Stop()
	}
	s.hub.Run(ctx)
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.RunHub(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(s.cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.logger.Info("Inference service started",
		zap.String("addr", s.cfg.Addr()),
		zap.String("path", api.FramePath),
		zap.Bool("auth", s.cfg.JWTSecret != ""),
		zap.Duration("latency", s.cfg.Latency),
		zap.Duration("latencyJitter", s.cfg.LatencyJitter))

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Inference service is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}

	s.logger.Info("Inference service exited")
	return nil
}
