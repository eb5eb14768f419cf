// Package server exposes the policy decision point over HTTP: the
// evaluation endpoint, the health endpoint, and the live audit stream.
// A gRPC health service runs alongside for infrastructure probes.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vyrodovalexey/avpdp/internal/config"
	"github.com/vyrodovalexey/avpdp/internal/observability"
	"github.com/vyrodovalexey/avpdp/internal/pdp"
)

// Server timeout defaults.
const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second

	// maxRequestBodySize caps the evaluation request body at 1 MB.
	maxRequestBodySize = 1 << 20
)

// ginModeOnce ensures gin.SetMode is only called once.
var ginModeOnce sync.Once

// Server serves policy decisions over HTTP and exposes a gRPC health
// service.
type Server struct {
	cfg        config.ServerConfig
	engine     pdp.Engine
	engineCfg  atomic.Pointer[pdp.Config]
	ginEngine  *gin.Engine
	httpServer *http.Server
	grpcServer *grpc.Server
	health     *HealthServer
	limiter    *RateLimiter
	stream     *StreamHub
	logger     observability.Logger
	metrics    *Metrics

	mu      sync.Mutex
	running bool
}

// Option is a functional option for the server.
type Option func(*Server)

// WithServerLogger sets the logger.
func WithServerLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger.Named("server")
	}
}

// WithServerMetrics sets the metrics.
func WithServerMetrics(metrics *Metrics) Option {
	return func(s *Server) {
		s.metrics = metrics
	}
}

// WithStreamHub attaches a live audit stream hub. Without one the
// stream endpoint responds with 404.
func WithStreamHub(hub *StreamHub) Option {
	return func(s *Server) {
		s.stream = hub
	}
}

// New creates a new server around the given engine. engineCfg is the
// policy configuration the request mapping consults; UpdateEngineConfig
// swaps it on reload.
func New(cfg config.ServerConfig, engine pdp.Engine, engineCfg *pdp.Config, opts ...Option) *Server {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	s := &Server{
		cfg:    cfg,
		engine: engine,
		logger: observability.NopLogger(),
		health: NewHealthServer(),
	}
	if engineCfg == nil {
		engineCfg = pdp.DefaultConfig()
	}
	s.engineCfg.Store(engineCfg)

	for _, opt := range opts {
		opt(s)
	}

	if s.metrics == nil {
		s.metrics = NewMetrics("pdp")
	}

	if cfg.RateLimit.Enabled {
		s.limiter = NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.PerClient,
			WithRateLimiterLogger(s.logger))
		s.limiter.StartAutoCleanup()
	}

	s.ginEngine = gin.New()
	s.ginEngine.Use(s.recoveryMiddleware())
	s.ginEngine.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBodySize)
		c.Next()
	})
	if s.limiter != nil {
		s.ginEngine.Use(s.rateLimitMiddleware())
	}
	s.registerRoutes()

	return s
}

// UpdateEngineConfig swaps the policy configuration the request mapping
// consults. Called together with Engine.Reload on hot reload.
func (s *Server) UpdateEngineConfig(cfg *pdp.Config) {
	if cfg == nil {
		return
	}
	s.engineCfg.Store(cfg)
}

// Handler returns the HTTP handler. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.ginEngine
}

// registerRoutes wires the HTTP routes.
func (s *Server) registerRoutes() {
	s.ginEngine.GET("/health", s.handleHealth)
	s.ginEngine.POST("/v1/evaluate", s.handleEvaluate)
	if s.stream != nil {
		s.ginEngine.GET("/v1/audit/stream", s.stream.Handle)
	}
}

// recoveryMiddleware converts handler panics into a 500 response. The
// engine itself never panics outward; this covers the transport layer.
func (s *Server) recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("handler panicked",
					observability.Any("panic", r),
					observability.String("path", c.Request.URL.Path),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "internal server error",
				})
			}
		}()
		c.Next()
	}
}

// rateLimitMiddleware applies the configured rate limit per client IP.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if !s.limiter.Allow(clientIP) {
			s.logger.Warn("rate limit exceeded",
				observability.String("client_ip", clientIP),
				observability.String("path", c.Request.URL.Path),
			)
			s.metrics.RecordRateLimited()
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// handleHealth reports liveness.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start starts the HTTP and gRPC listeners. It blocks until the HTTP
// server stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}

	addr := fmt.Sprintf(":%d", s.cfg.HTTPPort)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.ginEngine,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}
	s.running = true
	s.mu.Unlock()

	if s.cfg.GRPCPort > 0 {
		if err := s.startGRPC(); err != nil {
			return err
		}
	}

	s.logger.Info("starting HTTP server", observability.String("address", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// startGRPC starts the gRPC health listener in the background.
func (s *Server) startGRPC() error {
	addr := fmt.Sprintf(":%d", s.cfg.GRPCPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	s.grpcServer = grpc.NewServer()
	s.health.Register(s.grpcServer)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	s.logger.Info("starting gRPC health server", observability.String("address", addr))
	go func() {
		if err := s.grpcServer.Serve(listener); err != nil {
			s.logger.Error("grpc server stopped", observability.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.health.Shutdown()
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.stream != nil {
		_ = s.stream.Close()
	}

	s.logger.Info("stopping HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
