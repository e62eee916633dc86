package runtime

import (
	"context"
	"log/slog"
	"os"

	"github.com/grafana/loki-client-go/loki"
	"github.com/projectbarber/barber/libs/httpx"
	slogloki "github.com/samber/slog-loki/v3"
)

func NewLogger(service string) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(h).With("service", service)
}

// NewRemoteLogger ships records to Loki. The returned stop func flushes the client.
func NewRemoteLogger(service, lokiURL string) (*slog.Logger, func(), error) {
	cfg, err := loki.NewDefaultConfig(lokiURL)
	if err != nil {
		return nil, nil, err
	}
	client, err := loki.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	h := slogloki.Option{
		Level:  slog.LevelInfo,
		Client: client,
		AttrFromContext: []func(ctx context.Context) []slog.Attr{
			func(ctx context.Context) []slog.Attr {
				if id := httpx.RequestIDFromContext(ctx); id != "" {
					return []slog.Attr{slog.String("request_id", id)}
				}
				return nil
			},
		},
	}.NewLokiHandler()
	return slog.New(h).With("service", service), client.Stop, nil
}
