package server

import (
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/mukhtiarDev/personal-health-monitor/internal/coordinator"
)

var _ coordinator.StateObserver = (*HealthServer)(nil)

// ServiceName is the health service name reported for the worker loop.
const ServiceName = "healthmon.Worker"

// HealthServer exposes the worker's liveness over the standard gRPC health
// protocol. It follows coordinator state: SERVING while the loop runs and
// NOT_SERVING once shutdown begins.
type HealthServer struct {
	grpc   *grpc.Server
	health *health.Server
	logger *zap.Logger
}

// NewHealthServer creates a HealthServer. Both the overall ("") and the
// worker service start as NOT_SERVING until the coordinator reports a state.
func NewHealthServer(logger *zap.Logger, opts ...grpc.ServerOption) *HealthServer {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(gs, hs)

	return &HealthServer{grpc: gs, health: hs, logger: logger}
}

// ObserveState implements coordinator.StateObserver.
func (s *HealthServer) ObserveState(state coordinator.State) {
	status := healthpb.HealthCheckResponse_SERVING
	if state == coordinator.StateShuttingDown {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serve accepts connections on lis until Stop is called.
func (s *HealthServer) Serve(lis net.Listener) error {
	s.logger.Info("grpc health server listening", zap.String("addr", lis.Addr().String()))
	return s.grpc.Serve(lis)
}

// Stop marks every service NOT_SERVING, then drains in-flight RPCs.
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
