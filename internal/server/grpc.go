package server

import (
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// NewGRPCServer returns a gRPC server exposing the standard health service
// (overall status plus TransportService) and reflection for grpcurl.
func (s *Server) NewGRPCServer() *grpc.Server {
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(s.unaryRecovery, s.unaryLogging))
	healthpb.RegisterHealthServer(gs, s.health)
	reflection.Register(gs)
	return gs
}
