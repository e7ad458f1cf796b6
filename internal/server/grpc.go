package server

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"AuctionLedger/internal/observability"
)

// GRPCServer exposes the standard gRPC health service plus server
// reflection, so orchestrators and grpcurl can probe the process. The
// query API itself is HTTP/JSON (see HTTPServer).
type GRPCServer struct {
	grpcServer   *grpc.Server
	healthServer *health.Server
	addr         string
}

// NewGRPCServer creates the gRPC server and registers health and
// reflection services.
func NewGRPCServer(addr string) *GRPCServer {
	grpcServer := grpc.NewServer()

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	return &GRPCServer{
		grpcServer:   grpcServer,
		healthServer: healthServer,
		addr:         addr,
	}
}

// SetServing flips the health status once startup recovery is done.
func (s *GRPCServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.healthServer.SetServingStatus("", status)
}

// Start serves gRPC until ctx is cancelled (blocking).
func (s *GRPCServer) Start(ctx context.Context) error {
	log := observability.NewLogger("server.grpc")

	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("gRPC server shutting down")
		s.grpcServer.GracefulStop()
	}()

	log.Info().Str("addr", s.addr).Msg("gRPC server listening")
	return s.grpcServer.Serve(lis)
}
