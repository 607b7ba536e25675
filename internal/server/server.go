// Package server exposes the memory graph over HTTP. It is the serving
// shell around the store: the core packages carry the semantics, this one
// carries the wire.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"dev.helix.recall/internal/memory"
	"dev.helix.recall/internal/observability/metrics"
	"dev.helix.recall/internal/routing"
)

// Server wraps a Gin engine and an HTTP server with lifecycle management
type Server struct {
	engine    *gin.Engine
	server    *http.Server
	store     memory.Store
	intent    *routing.Router
	collector *metrics.Collector
	log       *logrus.Logger
	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// Option configures the Server
type Option func(*Server)

// WithLogger sets a custom logger for the server
func WithLogger(log *logrus.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithGinMode sets the Gin mode (debug, release, test)
func WithGinMode(mode string) Option {
	return func(s *Server) {
		gin.SetMode(mode)
	}
}

// WithCollector wires a metrics collector into the server: requests are
// counted per route, traversals are timed, and /metrics is served.
func WithCollector(collector *metrics.Collector) Option {
	return func(s *Server) {
		s.collector = collector
	}
}

// New creates a server around the given store. The intent router decides
// capability routing for recorded interactions; passing nil builds one
// with default patterns.
func New(store memory.Store, intent *routing.Router, opts ...Option) *Server {
	s := &Server{
		store:  store,
		intent: intent,
		log:    logrus.New(),
	}

	// Apply options
	for _, opt := range opts {
		opt(s)
	}

	if s.intent == nil {
		s.intent = routing.NewRouter(nil, s.log)
	}

	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	if s.collector != nil {
		s.engine.Use(s.requestMetricsMiddleware())
	}

	s.registerRoutes()

	return s
}

// registerRoutes wires the HTTP surface onto the engine
func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)
	if s.collector != nil {
		s.engine.GET("/metrics", gin.WrapH(s.collector.Handler()))
	}

	v1 := s.engine.Group("/v1")
	{
		v1.POST("/entities", s.handleCreateEntity)
		v1.GET("/entities/:id", s.handleGetEntity)
		v1.GET("/entities/:id/facts", s.handleEntityFacts)
		v1.GET("/entities/:id/related", s.handleRelatedEntities)
		v1.POST("/facts", s.handleCreateFact)
		v1.GET("/facts/:id", s.handleGetFact)
		v1.POST("/facts/:id/touch", s.handleTouchFact)
		v1.POST("/decay", s.handleDecay)
		v1.POST("/interactions", s.handleRecordInteraction)
		v1.GET("/context", s.handleContext)
		v1.GET("/stats", s.handleStats)
	}
}

// requestMetricsMiddleware counts completed requests per method, route
// template, and status code.
func (s *Server) requestMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		s.collector.RequestCount.WithLabelValues(c.Request.Method, endpoint, status).Inc()
	}
}

// Engine returns the underlying Gin engine
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	s.engine.ServeHTTP(w, req)
}

// Start starts the HTTP server on the given address and blocks until the
// server stops. A graceful Shutdown is not reported as an error.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.log.WithField("addr", addr).Info("Starting HTTP server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.log.Info("Shutting down HTTP server...")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.log.Info("HTTP server stopped")
	return nil
}

// IsRunning returns whether the server is currently running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// updateGraphGauges refreshes the entity and fact gauges after a mutation
func (s *Server) updateGraphGauges(ctx context.Context) {
	if s.collector == nil {
		return
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		s.log.WithError(err).Warn("Failed to refresh graph gauges")
		return
	}
	s.collector.SetGraphSize(stats.Entities, stats.Facts)
}

// observeTraversal records the duration of a traversal that began at start
func (s *Server) observeTraversal(start time.Time) {
	if s.collector == nil {
		return
	}
	s.collector.ObserveTraversal(time.Since(start).Seconds())
}
