// Package api exposes the cohort service over HTTP with gin.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ortho-cohortgen/internal/domain"
	"github.com/ortho-cohortgen/internal/middleware"
	"github.com/ortho-cohortgen/internal/service"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Server represents the HTTP server
type Server struct {
	service  *service.CohortService
	cfg      domain.ServerConfig
	defaults domain.GeneratorConfig
	logger   *logrus.Logger
	gatherer prometheus.Gatherer
	router   *gin.Engine
	server   *http.Server
}

// Option customizes a Server.
type Option func(*Server)

// WithGatherer serves metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithDefaults sets the generator section that fills whatever a dataset
// request leaves unset.
func WithDefaults(gen domain.GeneratorConfig) Option {
	return func(s *Server) {
		s.defaults = gen
	}
}

// NewServer creates a new HTTP server instance
func NewServer(svc *service.CohortService, cfg domain.ServerConfig, logger *logrus.Logger, opts ...Option) *Server {
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		service:  svc,
		cfg:      cfg,
		logger:   logger,
		gatherer: prometheus.DefaultGatherer,
		router:   gin.New(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router.Use(gin.Recovery())
	s.router.Use(middleware.CorrelationID())
	s.router.Use(middleware.RequestLogger(logger))
	s.router.Use(middleware.SecurityHeaders())
	s.router.Use(middleware.CORS(cfg.AllowedOrigin))
	s.router.Use(middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst).Middleware())

	s.setupRoutes()
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/rulesets", s.handleListRuleSets)
		v1.GET("/rulesets/:version", s.handleGetRuleSet)
		v1.POST("/recommendations", s.handleRecommend)

		v1.POST("/datasets", s.handleGenerate)
		v1.GET("/datasets", s.handleListRuns)
		v1.GET("/datasets/stream", s.handleStream)
		v1.GET("/datasets/:id", s.handleGetRun)
		v1.GET("/datasets/:id/records", s.handleGetRecords)
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   Version,
		"rule_sets": s.service.Registry().Versions(),
	})
}
