package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCClient probes the controller's gRPC health service.
type GRPCClient struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

// NewGRPCClient connects to the given gRPC address and returns a client.
func NewGRPCClient(addr string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCClient{
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
	}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// Health returns the serving status of service ("" for the whole server)
// in lowercase, e.g. "serving" or "not_serving".
func (c *GRPCClient) Health(ctx context.Context, service string) (string, error) {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return "", fmt.Errorf("health check %q: %w", service, err)
	}
	return healthStatusName(resp.GetStatus()), nil
}

func healthStatusName(s healthpb.HealthCheckResponse_ServingStatus) string {
	switch s {
	case healthpb.HealthCheckResponse_SERVING:
		return "serving"
	case healthpb.HealthCheckResponse_NOT_SERVING:
		return "not_serving"
	case healthpb.HealthCheckResponse_SERVICE_UNKNOWN:
		return "service_unknown"
	}
	return "unknown"
}
