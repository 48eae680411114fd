package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"SignalSentinel/internal/config"
	"SignalSentinel/internal/logger"
	"SignalSentinel/internal/scheduler"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Controller is the agent surface exposed over HTTP.
type Controller interface {
	Reload() error
	ApplyUpdate(u config.Update) error
	Pause()
	Resume()
	Status() scheduler.Health
	ResetCooldown(ctx context.Context) error
}

// Response is the JSON envelope of every non-metrics route.
type Response struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Server is the operational HTTP surface: health, metrics and control.
type Server struct {
	echo *echo.Echo
	addr string
	log  zerolog.Logger
}

// New builds the server. Metrics are served from gatherer.
func New(addr string, ctl Controller, gatherer prometheus.Gatherer, log zerolog.Logger) *Server {
	log = logger.Component(log, "server")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(recoverer(log))
	e.Use(requestLogging(log))

	h := &handler{ctl: ctl}
	e.GET("/healthz", h.health)
	e.POST("/reload", h.reload)
	e.POST("/pause", h.pause)
	e.POST("/resume", h.resume)
	e.POST("/cooldown/reset", h.resetCooldown)
	e.PATCH("/config", h.update)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return &Server{echo: e, addr: addr, log: log}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("http server listening")
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("http server error")
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info().Msg("http server stopped")
	return nil
}

type handler struct {
	ctl Controller
}

func respond(c echo.Context, status int, data any) error {
	return c.JSON(status, Response{Status: status, Message: http.StatusText(status), Data: data})
}

func (h *handler) health(c echo.Context) error {
	st := h.ctl.Status()
	if !st.Healthy() {
		return respond(c, http.StatusServiceUnavailable, st)
	}
	return respond(c, http.StatusOK, st)
}

func (h *handler) reload(c echo.Context) error {
	if err := h.ctl.Reload(); err != nil {
		return respond(c, statusFor(err), err.Error())
	}
	return respond(c, http.StatusOK, h.ctl.Status())
}

func (h *handler) pause(c echo.Context) error {
	h.ctl.Pause()
	return respond(c, http.StatusOK, map[string]bool{"paused": true})
}

func (h *handler) resume(c echo.Context) error {
	h.ctl.Resume()
	return respond(c, http.StatusOK, map[string]bool{"paused": false})
}

func (h *handler) resetCooldown(c echo.Context) error {
	if err := h.ctl.ResetCooldown(c.Request().Context()); err != nil {
		return respond(c, http.StatusInternalServerError, err.Error())
	}
	return respond(c, http.StatusOK, map[string]bool{"reset": true})
}

func (h *handler) update(c echo.Context) error {
	var u config.Update
	if err := c.Bind(&u); err != nil {
		return respond(c, http.StatusBadRequest, "invalid JSON body")
	}
	if u.Empty() {
		return respond(c, http.StatusBadRequest, "no fields to update")
	}
	if err := h.ctl.ApplyUpdate(u); err != nil {
		return respond(c, statusFor(err), err.Error())
	}
	return respond(c, http.StatusOK, h.ctl.Status())
}

func statusFor(err error) int {
	if errors.Is(err, config.ErrInvalid) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
