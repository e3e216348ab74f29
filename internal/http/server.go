// Package http exposes the resolution engine over a JSON API.
package http

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/resolvd/internal/classifier"
	"github.com/fyrsmithlabs/resolvd/internal/engine"
	"github.com/fyrsmithlabs/resolvd/internal/learner"
	"github.com/fyrsmithlabs/resolvd/internal/logging"
	"github.com/fyrsmithlabs/resolvd/internal/pattern"
	"github.com/fyrsmithlabs/resolvd/internal/secrets"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = "1M"

// Service is the engine surface served over HTTP.
type Service interface {
	SubmitError(ctx context.Context, ev classifier.ErrorEvent) (*engine.ResolutionPlan, error)
	ReportOutcome(ctx context.Context, o learner.Outcome) error
	GetPatternStats(ctx context.Context, sig string) (*pattern.Record, error)
	ListPatternStats(ctx context.Context) ([]*pattern.Record, error)
	ResetLearning(ctx context.Context, sig string) error
	Health(ctx context.Context) (*engine.HealthReport, error)
}

// CheckFunc reports the health of one dependency.
type CheckFunc func(ctx context.Context) error

// Server provides HTTP endpoints for resolvd.
type Server struct {
	echo     *echo.Echo
	service  Service
	scrubber secrets.Scrubber
	logger   *zap.Logger
	config   *Config

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	Version string
}

// NewServer creates a new HTTP server.
func NewServer(svc Service, scrubber secrets.Scrubber, logger *zap.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if scrubber == nil {
		return nil, fmt.Errorf("scrubber cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8089,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(maxBodyBytes))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			reqID := c.Response().Header().Get(echo.HeaderXRequestID)
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), reqID)))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info("http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", reqID),
			)
			return nil
		}
	})
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())

	s := &Server{
		echo:     e,
		service:  svc,
		scrubber: scrubber,
		logger:   logger,
		config:   cfg,
		checks:   make(map[string]CheckFunc),
	}
	s.registerRoutes()
	return s, nil
}

// AddCheck registers a dependency reported by GET /api/v1/status.
func (s *Server) AddCheck(name string, fn CheckFunc) {
	s.mu.Lock()
	s.checks[name] = fn
	s.mu.Unlock()
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/errors", s.handleSubmitError)
	v1.POST("/outcomes", s.handleReportOutcome)
	v1.GET("/patterns", s.handleListPatterns)
	v1.GET("/patterns/:signature", s.handleGetPattern)
	v1.POST("/patterns/:signature/reset", s.handleResetLearning)
	v1.GET("/status", s.handleStatus)
	v1.POST("/scrub", s.handleScrub)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStatus(c echo.Context) error {
	ctx := c.Request().Context()
	report, err := s.service.Health(ctx)
	if err != nil {
		return s.httpError(c, err)
	}

	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)

	resp := StatusResponse{
		Status:   "ok",
		Version:  s.config.Version,
		Services: make(map[string]string, len(names)),
		Engine:   report,
	}
	for _, name := range names {
		s.mu.RLock()
		check := s.checks[name]
		s.mu.RUnlock()
		if err := check(ctx); err != nil {
			resp.Services[name] = "error: " + err.Error()
			resp.Status = "degraded"
			continue
		}
		resp.Services[name] = "ok"
	}
	return c.JSON(http.StatusOK, resp)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
