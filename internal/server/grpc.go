package server

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/GriffinCanCode/pixel-trigger/internal/engine"
	"github.com/GriffinCanCode/pixel-trigger/internal/trace"
)

// StateSource is the engine surface the health service follows.
type StateSource interface {
	State() engine.State
	OnStateChange(fn func(from, to engine.State))
}

// NewGRPC builds a gRPC server exposing standard health checks. The process
// itself always reports SERVING; HealthService reports SERVING while a run is
// active (Running or Recovering).
func NewGRPC(src StateSource) (*grpc.Server, *health.Server) {
	gs := grpc.NewServer(grpc.UnaryInterceptor(trace.UnaryServerInterceptor()))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(HealthService, healthStatus(src.State()))
	src.OnStateChange(func(_, to engine.State) {
		hs.SetServingStatus(HealthService, healthStatus(to))
	})
	return gs, hs
}

func healthStatus(s engine.State) healthpb.HealthCheckResponse_ServingStatus {
	if s.Active() {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
