package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     LogConfig
		wantErr bool
	}{
		{"defaults", DefaultLogConfig(), false},
		{"json to stderr", LogConfig{Level: "debug", Format: "json", Output: "stderr"}, false},
		{"console format", LogConfig{Level: "warn", Format: "console"}, false},
		{"unknown level", LogConfig{Level: "loud"}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, err := NewLogger(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)

			// Exercise the full surface; none of these may panic.
			logger.Debug("debug", String("k", "v"))
			logger.Info("info", Int("n", 1), Bool("b", true))
			logger.Warn("warn", Float64("f", 1.5))
			logger.Error("error", Error(assert.AnError))
			logger.With(String("component", "test")).Info("with")
			logger.Named("sub").Info("named")
		})
	}
}

func TestNopLogger(t *testing.T) {
	t.Parallel()

	logger := NopLogger()
	logger.Info("discarded", Any("x", struct{}{}))
	assert.Same(t, logger, logger.With(String("k", "v")))
	assert.Same(t, logger, logger.Named("sub"))
	assert.NoError(t, logger.Sync())
}
