package grpcx

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// HealthServer exposes grpc.health.v1 for one service name, driven by a probe.
type HealthServer struct {
	Server  *grpc.Server
	health  *health.Server
	service string
	probe   func(context.Context) error
	logger  *slog.Logger
}

func NewHealthServer(logger *slog.Logger, service string, probe func(context.Context) error) *HealthServer {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRequestIDInterceptor(),
			UnaryServerAccessLogInterceptor(logger),
		),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)
	return &HealthServer{Server: srv, health: hs, service: service, probe: probe, logger: logger}
}

// Refresh runs the probe once and publishes the result for the service name and
// for the overall server ("").
func (h *HealthServer) Refresh(ctx context.Context) {
	st := healthpb.HealthCheckResponse_SERVING
	if h.probe != nil {
		if err := h.probe(ctx); err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
			h.logger.Warn("grpc health probe failed", "err", err)
		}
	}
	h.health.SetServingStatus(h.service, st)
	h.health.SetServingStatus("", st)
}

// Serve refreshes health every interval and serves on lis until ctx is done.
func (h *HealthServer) Serve(ctx context.Context, lis net.Listener, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	h.Refresh(ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				h.health.Shutdown()
				h.Server.GracefulStop()
				return
			case <-ticker.C:
				h.Refresh(ctx)
			}
		}
	}()

	h.logger.Info("grpc server starting", "addr", lis.Addr().String())
	if err := h.Server.Serve(lis); err != nil {
		h.logger.Error("grpc server error", "err", err)
	}
}

// Probe asks the health service at addr whether service is serving.
func Probe(ctx context.Context, addr, service string) error {
	conn, err := NewClient(addr, DialOptions{})
	if err != nil {
		return err
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return err
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%s is %s", service, resp.Status)
	}
	return nil
}
