package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Port    int    `yaml:"port" json:"port"`
	Path    string `yaml:"path" json:"path"`
}

// DefaultMetricsConfig returns default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled: true,
		Port:    9091,
		Path:    "/metrics",
	}
}

// NewRegistry creates a Prometheus registry pre-populated with the
// standard process and Go runtime collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// MetricsServer serves the Prometheus metrics endpoint.
type MetricsServer struct {
	config   MetricsConfig
	registry *prometheus.Registry
	server   *http.Server
	logger   Logger
}

// NewMetricsServer creates a new metrics server backed by the given registry.
func NewMetricsServer(cfg MetricsConfig, registry *prometheus.Registry, logger Logger) *MetricsServer {
	if logger == nil {
		logger = NopLogger()
	}
	return &MetricsServer{
		config:   cfg,
		registry: registry,
		logger:   logger.Named("metrics"),
	}
}

// Start starts the metrics HTTP server. It returns immediately; serve
// errors other than http.ErrServerClosed are logged.
func (s *MetricsServer) Start() {
	if !s.config.Enabled {
		return
	}

	path := s.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Info("metrics server started",
			Int("port", s.config.Port),
			String("path", path),
		)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", Error(err))
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *MetricsServer) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
