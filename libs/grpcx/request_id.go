package grpcx

import (
	"context"

	"github.com/projectbarber/barber/libs/httpx"
	"google.golang.org/grpc/metadata"
)

// RequestIDMetadataKey is the canonical key used for request id propagation over gRPC metadata.
const RequestIDMetadataKey = "x-request-id"

// RequestIDFromContext shares the HTTP request-id slot so log lines look the same
// whichever transport served the call.
func RequestIDFromContext(ctx context.Context) string {
	return httpx.RequestIDFromContext(ctx)
}

func requestIDFromIncoming(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get(RequestIDMetadataKey); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
