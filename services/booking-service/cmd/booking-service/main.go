package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/projectbarber/barber/libs/auth"
	"github.com/projectbarber/barber/libs/config"
	"github.com/projectbarber/barber/libs/db"
	"github.com/projectbarber/barber/libs/grpcx"
	"github.com/projectbarber/barber/libs/httpx"
	"github.com/projectbarber/barber/libs/kafkax"
	otelx "github.com/projectbarber/barber/libs/otel"
	"github.com/projectbarber/barber/libs/runtime"
	"github.com/projectbarber/barber/services/booking-service/internal/availability"
	"github.com/projectbarber/barber/services/booking-service/internal/booking"
	"github.com/projectbarber/barber/services/booking-service/internal/clock"
	"github.com/projectbarber/barber/services/booking-service/internal/handlers"
	"github.com/projectbarber/barber/services/booking-service/internal/ids"
	"github.com/projectbarber/barber/services/booking-service/internal/metrics"
	"github.com/projectbarber/barber/services/booking-service/internal/outbox"
	"github.com/projectbarber/barber/services/booking-service/internal/payments"
	"github.com/projectbarber/barber/services/booking-service/internal/storage"
	"github.com/projectbarber/barber/services/booking-service/migrations"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("dotenv load failed", "err", err)
		os.Exit(1)
	}

	service := config.String("SERVICE_NAME", "booking-service")
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "healthcheck":
			os.Exit(healthcheck(service))
		case "hash-password":
			os.Exit(hashPassword(os.Args[2:]))
		}
	}
	logger := runtime.NewLogger(service)
	flush := func() {}
	if lokiURL := config.String("LOKI_URL", ""); lokiURL != "" {
		remote, stop, err := runtime.NewRemoteLogger(service, lokiURL)
		if err != nil {
			logger.Error("loki logger init failed; logging to stdout", "err", err)
		} else {
			logger, flush = remote, stop
		}
	}
	slog.SetDefault(logger)

	code := 0
	if err := run(logger, service); err != nil {
		logger.Error("booking service exited", "err", err)
		code = 1
	}
	flush()
	os.Exit(code)
}

func run(logger *slog.Logger, service string) error {
	port, err := config.Port("PORT", "3000")
	if err != nil {
		return err
	}
	grpcPort, err := config.Port("GRPC_PORT", "9093")
	if err != nil {
		return err
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return err
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	if err := metrics.StartPush(
		config.String("METRICS_PUSH_URL", ""),
		config.Duration("METRICS_PUSH_INTERVAL", 10*time.Second),
		`service="`+service+`"`,
	); err != nil {
		logger.Error("metrics push init failed", "err", err)
	}

	if config.Bool("AUTO_MIGRATE", true) {
		if err := db.Migrate(ctx, dbURL, migrations.FS, migrations.Dir); err != nil {
			return err
		}
		logger.Info("database migrations applied")
	}

	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
		MinConns: int32(config.Int("DB_MIN_CONNS", 1)),
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	outboxRepo := outbox.NewRepository()
	store := storage.NewPostgresStore(pool, outboxRepo)

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go publisher.Run(ctx)

	loc, err := time.LoadLocation(config.String("SHOP_TIMEZONE", "UTC"))
	if err != nil {
		return err
	}
	hours, err := availability.ParseHours(
		config.String("OPENING_TIME", "09:00"),
		config.String("CLOSING_TIME", "19:00"),
		time.Duration(config.Int("SLOT_MINUTES", 30))*time.Minute,
	)
	if err != nil {
		return err
	}
	instructions, err := payments.LoadInstructionBook(config.String("CONFIG_FILE", ""), config.String("PAYMENT_PIX_KEY", ""))
	if err != nil {
		return err
	}

	clk := clock.System{}
	engine := booking.NewEngine(store, clk, ids.UUID{}, logger, booking.Config{Hours: hours, Location: loc})
	reconciler := payments.NewReconciler(store, clk, ids.UUID{}, logger, payments.Config{
		Provider:     config.String("PAYMENT_PROVIDER", payments.DefaultProvider),
		Instructions: instructions,
	})

	signer, err := adminSigner(logger, config.String("ADMIN_JWT_SECRET", ""))
	if err != nil {
		return err
	}

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	}

	trusted, err := httpx.ParseTrustedProxies(config.List("TRUSTED_PROXIES", ""))
	if err != nil {
		return err
	}
	clientKey := httpx.ForwardedFor(trusted)

	perMinute := config.Int("RATE_LIMIT_PER_MINUTE", 30)
	webhookPerMinute := config.Int("WEBHOOK_RATE_LIMIT_PER_MINUTE", 600)
	var throttle, webhookThrottle httpx.Middleware
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer rdb.Close()
		limiter := httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, "barber:login").WithKey(clientKey)
		throttle = limiter.Middleware(logger, true)
		webhookThrottle = httpx.NewRedisRateLimiter(rdb, webhookPerMinute, time.Minute, "barber:webhook").
			WithKey(clientKey).
			Middleware(logger, true)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: limiter.Ping})
	} else {
		throttle = httpx.NewRateLimiter(perMinute, time.Minute).WithKey(clientKey).Middleware()
		webhookThrottle = httpx.NewRateLimiter(webhookPerMinute, time.Minute).WithKey(clientKey).Middleware()
	}

	api := handlers.New(handlers.Config{
		Booking:         engine,
		Payments:        reconciler,
		Signer:          signer,
		AdminUser:       config.String("ADMIN_USER", ""),
		AdminPassword:   config.String("ADMIN_PASSWORD", ""),
		TokenTTL:        config.TTL(config.String("ADMIN_JWT_EXPIRES_IN", "8h")),
		WebhookToken:    config.String("PAYMENT_WEBHOOK_TOKEN", ""),
		StripeSecret:    config.String("STRIPE_WEBHOOK_SECRET", ""),
		StripeTolerance: config.Duration("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 5*time.Minute),
		Throttle:        throttle,
		WebhookThrottle: webhookThrottle,
		Ping:            store.Ping,
		Logger:          logger,
	})

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("GET /metrics", metrics.Handler())
	api.Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithPrefixAlias("/api"),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.PublicAPIPolicy(config.List("CORS_ALLOWED_ORIGINS", "*"))),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 15*time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")

	lis, err := net.Listen("tcp", ":"+grpcPort)
	if err != nil {
		return err
	}
	health := grpcx.NewHealthServer(logger, service, store.Ping)
	go health.Serve(ctx, lis, 10*time.Second)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return runtime.Serve(ctx, logger, srv, 10*time.Second)
}

// healthcheck probes a running instance over gRPC health, for container probes.
func healthcheck(service string) int {
	port, err := config.Port("GRPC_PORT", "9093")
	if err != nil {
		slog.Error("healthcheck", "err", err)
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := grpcx.Probe(ctx, "127.0.0.1:"+port, service); err != nil {
		slog.Error("healthcheck failed", "err", err)
		return 1
	}
	return 0
}

// hashPassword prints a bcrypt hash usable as ADMIN_PASSWORD.
func hashPassword(args []string) int {
	if len(args) != 1 || args[0] == "" {
		fmt.Fprintln(os.Stderr, "usage: booking-service hash-password <password>")
		return 2
	}
	hash, err := auth.HashPassword(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println(hash)
	return 0
}

// adminSigner returns nil when no secret is configured, which disables admin routes.
func adminSigner(logger *slog.Logger, secret string) (*auth.Signer, error) {
	if secret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; admin routes disabled")
		return nil, nil
	}
	signer, err := auth.NewSigner(secret)
	if err != nil {
		return nil, fmt.Errorf("admin token signer: %w", err)
	}
	return signer, nil
}
