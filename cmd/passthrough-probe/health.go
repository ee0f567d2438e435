package main

import (
	"context"
	"fmt"
	"log"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/passthrough/internal/passthrough"
)

// healthService is the gRPC health service name reported by the probe.
const healthService = "passthrough.Camera"

// healthReporter mirrors the camera session onto the standard gRPC health
// service: SERVING while a camera streams, NOT_SERVING otherwise.
type healthReporter struct {
	srv *health.Server
}

func newHealthReporter() *healthReporter {
	srv := health.NewServer()
	srv.SetServingStatus(healthService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &healthReporter{srv: srv}
}

func (h *healthReporter) SessionOpened(passthrough.SessionInfo) {
	h.srv.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)
}

func (h *healthReporter) SessionClosed(passthrough.SessionInfo, passthrough.SessionSummary) {
	h.srv.SetServingStatus(healthService, healthpb.HealthCheckResponse_NOT_SERVING)
}

// serveHealth runs the gRPC health service on addr until ctx is done.
func serveHealth(ctx context.Context, addr string, h *healthReporter) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, h.srv)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("gRPC health server listening on %s", lis.Addr())
		errCh <- s.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		h.srv.Shutdown()
		s.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}
