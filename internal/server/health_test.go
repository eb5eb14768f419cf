package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

func TestHealthServerCheck(t *testing.T) {
	t.Parallel()

	h := NewHealthServer()

	t.Run("overall status defaults to serving", func(t *testing.T) {
		t.Parallel()

		resp, err := h.Check(context.Background(), &healthpb.HealthCheckRequest{})
		require.NoError(t, err)
		assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
	})

	t.Run("unknown service is not found", func(t *testing.T) {
		t.Parallel()

		_, err := h.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "ghost"})
		require.Error(t, err)
		assert.Equal(t, codes.NotFound, status.Code(err))
	})
}

func TestHealthServerSetServingStatus(t *testing.T) {
	t.Parallel()

	h := NewHealthServer()
	h.SetServingStatus("pdp", healthpb.HealthCheckResponse_SERVING)

	resp, err := h.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "pdp"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	h.SetServingStatus("pdp", healthpb.HealthCheckResponse_NOT_SERVING)
	resp, err = h.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "pdp"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestHealthServerShutdown(t *testing.T) {
	t.Parallel()

	h := NewHealthServer()
	h.SetServingStatus("pdp", healthpb.HealthCheckResponse_SERVING)
	h.Shutdown()

	for _, service := range []string{"", "pdp"} {
		resp, err := h.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
	}
}
