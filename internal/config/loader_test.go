package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes a config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "pdp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server:
  httpPort: 9080
  rateLimit:
    enabled: true
    rps: 50
    burst: 100
    perClient: true
observability:
  serviceName: avpdp-test
  log:
    level: debug
    format: console
audit:
  enabled: true
  output: stderr
  redis:
    enabled: true
    addr: localhost:6379
    stream: "avpdp:test"
engine:
  businessHoursStart: 8
  businessHoursEnd: 18
  allowedCountries: [US, DE]
  rbacOverrides:
    auditor:
      audit_data: [read, export]
  policies:
    - name: block-proxy-admin
      expression: 'action.type == "admin" && environment.network == "anonymizing_proxy"'
      effect: deny
      reason: admin actions from proxies are blocked
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9080, cfg.Server.HTTPPort)
	assert.Equal(t, DefaultGRPCPort, cfg.Server.GRPCPort)
	assert.Equal(t, 50, cfg.Server.RateLimit.RPS)
	assert.Equal(t, "avpdp-test", cfg.Observability.ServiceName)
	assert.Equal(t, "debug", cfg.Observability.Log.Level)
	assert.Equal(t, "stderr", cfg.Audit.Output)
	assert.True(t, cfg.Audit.Redis.Enabled)
	assert.Equal(t, "avpdp:test", cfg.Audit.Redis.Stream)
	assert.Equal(t, 8, cfg.Engine.BusinessHoursStart)
	assert.Equal(t, []string{"US", "DE"}, cfg.Engine.AllowedCountries)
	assert.Contains(t, cfg.Engine.RBACOverrides, "auditor")
	require.Len(t, cfg.Engine.Policies, 1)
	assert.Equal(t, "block-proxy-admin", cfg.Engine.Policies[0].Name)
}

func TestLoadKeepsDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "audit:\n  output: stdout\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	defaults := DefaultConfig()
	assert.Equal(t, defaults.Server.HTTPPort, cfg.Server.HTTPPort)
	assert.Equal(t, defaults.Engine.BusinessHoursStart, cfg.Engine.BusinessHoursStart)
	assert.Equal(t, defaults.Engine.SessionStaleness, cfg.Engine.SessionStaleness)
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{
			name: "empty path",
			path: func(_ *testing.T) string { return "" },
		},
		{
			name: "missing file",
			path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") },
		},
		{
			name: "directory",
			path: func(t *testing.T) string { return t.TempDir() },
		},
		{
			name: "malformed yaml",
			path: func(t *testing.T) string { return writeConfig(t, "server: [not a map") },
		},
		{
			name: "invalid port",
			path: func(t *testing.T) string { return writeConfig(t, "server:\n  httpPort: 99999\n") },
		},
		{
			name: "invalid business hours",
			path: func(t *testing.T) string {
				return writeConfig(t, "engine:\n  businessHoursStart: 23\n  businessHoursEnd: 6\n")
			},
		},
		{
			name: "invalid policy",
			path: func(t *testing.T) string {
				return writeConfig(t, "engine:\n  policies:\n    - name: p\n      expression: 'true'\n      effect: maybe\n")
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Load(tt.path(t))
			assert.Error(t, err)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Server.RateLimit.Burst = 1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Audit.QueueSize = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Server.GRPCPort = -1
	assert.Error(t, cfg.Validate())
}
