// Package http serves the ledger back office over a JSON API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/garyjia/ledger-backoffice/internal/application/service"
	"github.com/garyjia/ledger-backoffice/internal/cache"
	"github.com/garyjia/ledger-backoffice/internal/textgen"
)

var tracer = otel.Tracer("http")

// RequestIDHeader carries the correlation id echoed on every response
const RequestIDHeader = "X-Request-ID"

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// RequestRecorder observes served requests
type RequestRecorder interface {
	RecordRequest(method, route, status string, d time.Duration)
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host          string
	Port          int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	MaxUploadSize int64
	// ShutdownTimeout bounds the graceful drain on Stop
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		MaxUploadSize:   20 << 20,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Dependencies are the application components served over HTTP.
// Health, CacheStats, Gatherer and Recorder are optional.
type Dependencies struct {
	Import        service.ImportService
	Ledger        service.LedgerService
	Justification service.JustificationService
	Health        func(ctx context.Context) (healthy bool, providers []textgen.ProviderStatus)
	CacheStats    func() []cache.Stats
	Gatherer      prometheus.Gatherer
	Recorder      RequestRecorder
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	deps       Dependencies
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, deps Dependencies, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	defaults := DefaultServerConfig()
	if config.MaxUploadSize <= 0 {
		config.MaxUploadSize = defaults.MaxUploadSize
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}

	server := &Server{
		config: config,
		router: gin.New(),
		deps:   deps,
		logger: logger,
	}

	server.router.Use(gin.Recovery(), requestID(), tracing(otel.GetTextMapPropagator()), server.loggingMiddleware())
	server.setupRoutes()

	return server
}

// requestID keeps a caller supplied X-Request-ID or assigns a new one
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// tracing continues the caller's trace from the request headers and wraps
// the handler chain in a server span named after the route
func tracing(propagator propagation.TextMapPropagator) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.route", route),
				attribute.String("request.id", c.GetString("request_id")),
			),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

// loggingMiddleware logs every request and feeds the request histogram
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		kv := []interface{}{
			"request_id", c.GetString("request_id"),
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"client_ip", c.ClientIP(),
		}
		switch {
		case status >= http.StatusInternalServerError:
			s.logger.Error("HTTP request", kv...)
		case status >= http.StatusBadRequest:
			s.logger.Warn("HTTP request", kv...)
		default:
			s.logger.Info("HTTP request", kv...)
		}

		if s.deps.Recorder != nil {
			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}
			s.deps.Recorder.RecordRequest(method, route, strconv.Itoa(status), latency)
		}
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.deps, s.config.MaxUploadSize, s.logger)

	// Health check
	s.router.GET("/health", handlers.HealthCheck)

	if s.deps.Gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// API routes
	api := s.router.Group("/api")
	{
		ledger := api.Group("/clients/:clientID/ledgers/:variant")
		{
			ledger.POST("/import", handlers.ImportLedger)
			ledger.GET("/entries", handlers.ListEntries)
			ledger.DELETE("/entries", handlers.ClearLedger)
			ledger.GET("/entries/:id/classification", handlers.ClassifyEntry)
			ledger.PUT("/entries/:id/reference", handlers.UpdateReference)
			ledger.POST("/entries/:id/justifications", handlers.RequestJustification)
			ledger.GET("/suggestions", handlers.Suggestions)
		}

		api.GET("/clients/:clientID/justifications", handlers.ListRequests)
		api.GET("/justifications/:id", handlers.GetRequest)
		api.PATCH("/justifications/:id", handlers.UpdateRequest)
		api.DELETE("/justifications/:id", handlers.RemoveRequest)

		api.GET("/cache/stats", handlers.CacheStats)
	}
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
