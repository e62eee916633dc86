package grpcx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

func TestHealthServerReflectsProbe(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var down atomic.Bool
	hs := NewHealthServer(logger, "booking", func(context.Context) error {
		if down.Load() {
			return errors.New("db down")
		}
		return nil
	})

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hs.Serve(ctx, lis, time.Hour)

	conn, err := NewClient(lis.Addr().String(), DialOptions{})
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	var header metadata.MD
	callCtx, callCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer callCancel()
	resp, err := client.Check(callCtx, &healthpb.HealthCheckRequest{Service: "booking"}, grpc.Header(&header))
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
	assert.NotEmpty(t, header.Get(RequestIDMetadataKey))

	down.Store(true)
	hs.Refresh(context.Background())
	resp, err = client.Check(callCtx, &healthpb.HealthCheckRequest{Service: "booking"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}

func TestProbe(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var down atomic.Bool
	hs := NewHealthServer(logger, "booking", func(context.Context) error {
		if down.Load() {
			return errors.New("db down")
		}
		return nil
	})

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hs.Serve(ctx, lis, time.Hour)

	callCtx, callCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer callCancel()
	require.NoError(t, Probe(callCtx, lis.Addr().String(), "booking"))

	down.Store(true)
	hs.Refresh(context.Background())
	assert.Error(t, Probe(callCtx, lis.Addr().String(), "booking"))
}
