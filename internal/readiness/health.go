package readiness

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// DefaultHealthService is the service name reported next to the overall ("") status.
const DefaultHealthService = "null-webhook"

// Health serves the standard gRPC health service on its own listener. It
// reports NOT_SERVING until Announce is called.
type Health struct {
	Service  string
	Listener net.Listener

	server *grpc.Server
	health *health.Server
}

func NewHealth(addr, service string) (*Health, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("health listen: %w", err)
	}
	return NewHealthFromListener(ln, service), nil
}

func NewHealthFromListener(ln net.Listener, service string) *Health {
	if service == "" {
		service = DefaultHealthService
	}
	s := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)

	h := &Health{Service: service, Listener: ln, server: s, health: hs}
	h.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Serve blocks until Withdraw stops the server.
func (h *Health) Serve() error {
	err := h.server.Serve(h.Listener)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

func (h *Health) Name() string { return "grpc health" }

func (h *Health) Announce(_ context.Context) error {
	h.setStatus(healthpb.HealthCheckResponse_SERVING)
	return nil
}

// Withdraw marks every service NOT_SERVING and stops the gRPC server.
func (h *Health) Withdraw(_ context.Context) error {
	h.health.Shutdown()
	h.server.Stop()
	return nil
}

func (h *Health) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(h.Service, status)
}
