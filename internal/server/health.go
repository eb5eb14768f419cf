package server

import (
	"context"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// HealthServer implements the gRPC health check service for
// infrastructure probes.
type HealthServer struct {
	healthpb.UnimplementedHealthServer
	status map[string]healthpb.HealthCheckResponse_ServingStatus
	mu     sync.RWMutex
}

// NewHealthServer creates a new health server.
func NewHealthServer() *HealthServer {
	return &HealthServer{
		status: make(map[string]healthpb.HealthCheckResponse_ServingStatus),
	}
}

// Check implements the Health.Check RPC.
func (s *HealthServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	service := req.GetService()
	if st, ok := s.status[service]; ok {
		return &healthpb.HealthCheckResponse{Status: st}, nil
	}
	if service == "" {
		return &healthpb.HealthCheckResponse{
			Status: healthpb.HealthCheckResponse_SERVING,
		}, nil
	}
	return nil, status.Errorf(codes.NotFound, "unknown service: %s", service)
}

// Watch implements the Health.Watch RPC. It sends the current status
// and holds the stream open until the client goes away.
func (s *HealthServer) Watch(req *healthpb.HealthCheckRequest, stream healthpb.Health_WatchServer) error {
	resp, err := s.Check(stream.Context(), req)
	if err != nil {
		return err
	}
	if err := stream.Send(resp); err != nil {
		return err
	}

	<-stream.Context().Done()
	return stream.Context().Err()
}

// SetServingStatus sets the serving status for a service.
func (s *HealthServer) SetServingStatus(service string, st healthpb.HealthCheckResponse_ServingStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[service] = st
}

// Shutdown marks all services NOT_SERVING.
func (s *HealthServer) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for service := range s.status {
		s.status[service] = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.status[""] = healthpb.HealthCheckResponse_NOT_SERVING
}

// Register registers the health server with a gRPC server.
func (s *HealthServer) Register(server *grpc.Server) {
	healthpb.RegisterHealthServer(server, s)
}
