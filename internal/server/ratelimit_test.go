package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterGlobal(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1, 2, false)
	defer rl.Stop()

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))
	// Burst exhausted; the client identity does not matter.
	assert.False(t, rl.Allow("10.0.0.3"))
}

func TestRateLimiterPerClient(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1, 1, true)
	defer rl.Stop()

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))

	// A different client has its own bucket.
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestRateLimiterCleanup(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(10, 10, true, WithClientTTL(time.Minute))
	defer rl.Stop()

	rl.Allow("10.0.0.1")
	rl.Allow("10.0.0.2")

	rl.mu.Lock()
	assert.Len(t, rl.clients, 2)
	// Age one entry past the TTL.
	rl.clients["10.0.0.1"].lastAccess = time.Now().Add(-2 * time.Minute)
	rl.mu.Unlock()

	rl.CleanupOldClients(time.Minute)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Len(t, rl.clients, 1)
	assert.Contains(t, rl.clients, "10.0.0.2")
}

func TestRateLimiterStopIdempotent(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1, 1, true)
	rl.StartAutoCleanup()
	rl.Stop()
	rl.Stop()
}
