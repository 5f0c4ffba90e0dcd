// Package server exposes the gate controller over HTTP and gRPC: health,
// status, local triggers, a live cycle event stream and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/alfredjeanlab/o3gate/internal/gate"
	"github.com/alfredjeanlab/o3gate/internal/metrics"
	"github.com/alfredjeanlab/o3gate/internal/model"
)

// TransportService is the gRPC health service name that tracks the event
// transport. The overall ("") status stays SERVING while it is down.
const TransportService = "o3gate.transport"

// StatusSource reports the engine state.
type StatusSource interface {
	Status() model.CycleStatus
}

// TriggerSink accepts local triggers.
type TriggerSink interface {
	OnTrigger(ev model.TriggerEvent) gate.Decision
}

// Options configures a Server.
type Options struct {
	Machine model.MachineConfig
	Status  StatusSource
	Gate    TriggerSink
	Metrics *metrics.Metrics

	// DriverName and Simulated describe the pin driver in use.
	DriverName string
	Simulated  bool

	Version string
	Logger  *slog.Logger
}

// Server holds the state shared by the HTTP and gRPC surfaces.
type Server struct {
	opts   Options
	logger *slog.Logger
	hub    *sseHub
	health *health.Server

	transportUp atomic.Bool
}

func New(opts Options) *Server {
	s := &Server{
		opts:   opts,
		logger: opts.Logger,
		hub:    newSSEHub(),
		health: health.NewServer(),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(TransportService, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Attach sets the status source and trigger sink after construction, for
// callers whose engine needs Publisher before it exists. It must be called
// before the HTTP handler serves requests.
func (s *Server) Attach(status StatusSource, sink TriggerSink) {
	s.opts.Status = status
	s.opts.Gate = sink
}

// SetTransportConnected records whether the event transport is up. Both the
// status endpoint and the gRPC health service reflect it.
func (s *Server) SetTransportConnected(up bool) {
	if s.transportUp.Swap(up) == up {
		return
	}
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if up {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(TransportService, st)
	s.logger.Info("server: transport state changed", "connected", up)
}

// TransportConnected reports the last value given to SetTransportConnected.
func (s *Server) TransportConnected() bool {
	return s.transportUp.Load()
}

// Shutdown marks every health service NOT_SERVING.
func (s *Server) Shutdown() {
	s.health.Shutdown()
}

// Publisher returns an events.Publisher that feeds the SSE stream.
func (s *Server) Publisher() *StreamPublisher {
	return &StreamPublisher{hub: s.hub, logger: s.logger}
}

// StreamPublisher broadcasts cycle events to connected SSE clients.
type StreamPublisher struct {
	hub    *sseHub
	logger *slog.Logger
}

func (p *StreamPublisher) Publish(_ context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("server: dropping unencodable stream event", "topic", topic, "error", err)
		return err
	}
	p.hub.broadcast(topic, cycleIDOf(event), payload)
	return nil
}

func (p *StreamPublisher) Close() error { return nil }
