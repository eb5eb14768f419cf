// Package config provides configuration management for the policy
// decision point: YAML loading, validation, and hot reload of the policy
// data the engine consumes.
package config

import (
	"fmt"

	"github.com/vyrodovalexey/avpdp/internal/audit"
	"github.com/vyrodovalexey/avpdp/internal/observability"
	"github.com/vyrodovalexey/avpdp/internal/pdp"
)

// Server defaults.
const (
	// DefaultHTTPPort is the default HTTP listen port.
	DefaultHTTPPort = 8080

	// DefaultGRPCPort is the default gRPC health listen port.
	DefaultGRPCPort = 9090
)

// RateLimitConfig configures request rate limiting.
type RateLimitConfig struct {
	Enabled   bool `yaml:"enabled" json:"enabled"`
	RPS       int  `yaml:"rps" json:"rps"`
	Burst     int  `yaml:"burst" json:"burst"`
	PerClient bool `yaml:"perClient" json:"perClient"`
}

// ServerConfig configures the HTTP and gRPC surfaces.
type ServerConfig struct {
	HTTPPort  int             `yaml:"httpPort" json:"httpPort"`
	GRPCPort  int             `yaml:"grpcPort" json:"grpcPort"`
	RateLimit RateLimitConfig `yaml:"rateLimit" json:"rateLimit"`
}

// ObservabilityConfig groups logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	ServiceName string                      `yaml:"serviceName" json:"serviceName"`
	Log         observability.LogConfig     `yaml:"log" json:"log"`
	Tracing     observability.TracingConfig `yaml:"tracing" json:"tracing"`
	Metrics     observability.MetricsConfig `yaml:"metrics" json:"metrics"`
}

// AuditConfig configures audit persistence.
type AuditConfig struct {
	// Enabled toggles audit emission.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Output is "stdout", "stderr", or a file path for the writer sink.
	Output string `yaml:"output" json:"output"`

	// QueueSize is the dispatcher queue capacity.
	QueueSize int `yaml:"queueSize" json:"queueSize"`

	// Redis configures the Redis Streams sink.
	Redis audit.RedisConfig `yaml:"redis" json:"redis"`
}

// Config is the root service configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
	Audit         AuditConfig         `yaml:"audit" json:"audit"`
	Engine        pdp.Config          `yaml:"engine" json:"engine"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			GRPCPort: DefaultGRPCPort,
			RateLimit: RateLimitConfig{
				Enabled:   true,
				RPS:       100,
				Burst:     200,
				PerClient: true,
			},
		},
		Observability: ObservabilityConfig{
			ServiceName: "avpdp",
			Log:         observability.DefaultLogConfig(),
			Tracing:     observability.DefaultTracingConfig(),
			Metrics:     observability.DefaultMetricsConfig(),
		},
		Audit: AuditConfig{
			Enabled:   true,
			Output:    "stdout",
			QueueSize: audit.DefaultQueueSize,
		},
		Engine: *pdp.DefaultConfig(),
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.httpPort must be in (0,65535], got %d", c.Server.HTTPPort)
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("server.grpcPort must be in [0,65535], got %d", c.Server.GRPCPort)
	}
	if c.Server.RateLimit.Enabled {
		if c.Server.RateLimit.RPS <= 0 {
			return fmt.Errorf("server.rateLimit.rps must be positive, got %d", c.Server.RateLimit.RPS)
		}
		if c.Server.RateLimit.Burst < c.Server.RateLimit.RPS {
			return fmt.Errorf("server.rateLimit.burst must be >= rps")
		}
	}
	if c.Audit.QueueSize < 0 {
		return fmt.Errorf("audit.queueSize must not be negative")
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	return nil
}
