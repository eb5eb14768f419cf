package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/avpdp/internal/observability"
)

// Redis sink defaults.
const (
	// DefaultStream is the default Redis stream key.
	DefaultStream = "avpdp:audit"

	// DefaultMaxLen caps the stream length (approximate trimming).
	DefaultMaxLen = 100000

	// breakerTimeout is how long the breaker stays open after tripping.
	breakerTimeout = 30 * time.Second

	// breakerMinRequests is the minimum request count before the failure
	// ratio can trip the breaker.
	breakerMinRequests = 5
)

// RedisConfig configures the Redis Streams audit sink.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	Stream   string `yaml:"stream" json:"stream"`
	MaxLen   int64  `yaml:"maxLen" json:"maxLen"`
}

// GetEffectiveStream returns the stream key, defaulting when unset.
func (c *RedisConfig) GetEffectiveStream() string {
	if c.Stream == "" {
		return DefaultStream
	}
	return c.Stream
}

// GetEffectiveMaxLen returns the stream length cap, defaulting when unset.
func (c *RedisConfig) GetEffectiveMaxLen() int64 {
	if c.MaxLen <= 0 {
		return DefaultMaxLen
	}
	return c.MaxLen
}

// RedisSink appends audit records to a Redis stream. Writes go through a
// circuit breaker so a degraded Redis never backs up the dispatcher.
type RedisSink struct {
	client  redis.UniversalClient
	stream  string
	maxLen  int64
	breaker *gobreaker.CircuitBreaker
	logger  observability.Logger
}

// RedisSinkOption is a functional option for the Redis sink.
type RedisSinkOption func(*RedisSink)

// WithRedisSinkLogger sets the logger.
func WithRedisSinkLogger(logger observability.Logger) RedisSinkOption {
	return func(s *RedisSink) {
		s.logger = logger.Named("audit.redis")
	}
}

// WithRedisClient sets the Redis client, overriding the one built from
// configuration. Used by tests.
func WithRedisClient(client redis.UniversalClient) RedisSinkOption {
	return func(s *RedisSink) {
		s.client = client
	}
}

// NewRedisSink creates a Redis Streams audit sink.
func NewRedisSink(cfg *RedisConfig, opts ...RedisSinkOption) *RedisSink {
	s := &RedisSink{
		stream: cfg.GetEffectiveStream(),
		maxLen: cfg.GetEffectiveMaxLen(),
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		s.client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}

	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "audit-redis",
		Timeout: breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= breakerMinRequests && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("audit redis breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
	})

	return s
}

// Name identifies the sink.
func (s *RedisSink) Name() string { return "redis" }

// Write appends the record to the stream via XADD.
func (s *RedisSink) Write(ctx context.Context, record *Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.client.XAdd(ctx, &redis.XAddArgs{
			Stream: s.stream,
			MaxLen: s.maxLen,
			Approx: true,
			Values: map[string]interface{}{
				"id":     record.ID,
				"effect": record.Effect,
				"record": string(data),
			},
		}).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to append audit record to stream: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}

// Ensure RedisSink implements Sink.
var _ Sink = (*RedisSink)(nil)
