// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chainsight/core/internal/cascade"
	"github.com/chainsight/core/internal/circuitbreaker"
	"github.com/chainsight/core/internal/config"
	"github.com/chainsight/core/internal/health"
	"github.com/chainsight/core/internal/idgen"
	"github.com/chainsight/core/internal/intel"
	"github.com/chainsight/core/internal/layout"
	"github.com/chainsight/core/internal/logging"
	"github.com/chainsight/core/internal/metrics"
	"github.com/chainsight/core/internal/ratelimit"
	"github.com/chainsight/core/internal/realtime"
	"github.com/chainsight/core/internal/resolver"
	"github.com/chainsight/core/internal/security"
	"github.com/chainsight/core/internal/session"
	"github.com/chainsight/core/internal/synth"
	"github.com/chainsight/core/internal/validation"
)

// DefaultSubgraphDepth is used when a query does not specify one.
const DefaultSubgraphDepth = 2

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	resolver     *resolver.Resolver
	breaker      *circuitbreaker.Breaker
	cascade      *cascade.Cascade
	sessions     *session.Manager
	layoutEng    *layout.Engine
	realtimeHub  *realtime.Hub
	rateLimiter  *ratelimit.Limiter
	checks       *health.Registry
	synth        cascade.Synthesizer
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithSynthesizer sets a custom fallback generator (for testing)
func WithSynthesizer(g cascade.Synthesizer) Option {
	return func(s *Server) {
		s.synth = g
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply options first (may set logger/synthesizer)
	for _, opt := range opts {
		opt(s)
	}

	if s.synth == nil {
		s.synth = synth.New()
	}

	s.resolver = resolver.New(cfg.PrimaryUpstream, cfg.SecondaryUpstream)
	s.breaker = circuitbreaker.New(cfg.BreakerTrips, cfg.BreakerWindow)
	s.cascade = cascade.New(
		s.resolver,
		cascade.NewClient(cfg.FetchTimeout),
		s.breaker,
		s.synth,
		s.logger,
	)
	s.logger.Info("fetch cascade configured",
		"primary", cfg.PrimaryUpstream,
		"secondary", cfg.SecondaryUpstream != "",
		"timeout", cfg.FetchTimeout,
	)

	engine := layout.NewEngine(
		layout.Canvas{Width: cfg.CanvasWidth, Height: cfg.CanvasHeight},
		cfg.ForceLayout,
	)
	s.layoutEng = engine

	// Realtime hub for WebSocket streaming of panel and graph updates
	s.realtimeHub = realtime.NewHub(s.logger, cfg.AllowedOrigins)

	s.sessions = session.NewManager(s.cascade, engine, s.realtimeHub, DefaultSubgraphDepth, s.logger)
	s.logger.Info("session orchestrator ready", "default_depth", DefaultSubgraphDepth)

	// Upstream reachability checks
	s.checks = health.NewRegistry()
	s.checks.Register("primary", health.Upstream("primary", cfg.PrimaryUpstream, nil))
	if cfg.SecondaryUpstream != "" {
		s.checks.Register("secondary", health.Upstream("secondary", cfg.SecondaryUpstream, nil))
	}

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS
	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(security.CORSMiddleware(origins))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	limCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		limCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	}
	s.rateLimiter = ratelimit.New(limCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.WithPrefix("req_")
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for real-time panel and graph updates
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	api := s.router.Group("/api/v1")
	// Validate :address URL params on all API routes (no-op when param absent)
	api.Use(validation.AddressParamMiddleware())

	// Full investigation: session snapshot with every panel and the graph
	api.GET("/investigate/:address", s.investigateHandler)

	// Single-capability fetches through the cascade
	api.GET("/wallet/:address", s.capabilityHandler(intel.CapabilityWalletRisk))
	api.GET("/gnn/:address", s.capabilityHandler(intel.CapabilityClassification))
	api.GET("/multichain/:address", s.capabilityHandler(intel.CapabilityMultichain))
	api.GET("/social/:address", s.capabilityHandler(intel.CapabilitySocial))

	// Graph endpoints
	api.GET("/graph/subgraph/:address", s.subgraphHandler)
	api.POST("/graph/expand/:address", s.expandHandler)

	// Session interaction endpoints
	api.GET("/session/:id", s.sessionDocumentHandler)
	api.POST("/session/:id/select", s.selectHandler)
	api.POST("/session/:id/filter", s.filterHandler)
	api.POST("/session/:id/clear", s.clearHandler)
	api.POST("/session/:id/retry/:capability", s.retryHandler)
	api.DELETE("/session/:id", s.closeSessionHandler)
}

// -----------------------------------------------------------------------------
// Health handlers
// -----------------------------------------------------------------------------

// HealthResponse is the aggregate health payload.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.checks.CheckAll(ctx)

	checks := make(map[string]string, len(statuses))
	for _, st := range statuses {
		if st.Healthy {
			checks[st.Name] = "healthy"
		} else {
			checks[st.Name] = "unhealthy"
		}
	}

	// Unreachable upstreams degrade the dashboard to synthesized data but
	// do not take it down, so the aggregate status stays 200.
	status := "healthy"
	if !healthy {
		status = "degraded"
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Evict sessions abandoned by their clients
	s.sessions.StartSweeper(runCtx, time.Minute, 30*time.Minute)

	// Sample runtime metrics
	go metrics.StartRuntimeSampler(runCtx, 15*time.Second)

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, sweeper, sampler)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
