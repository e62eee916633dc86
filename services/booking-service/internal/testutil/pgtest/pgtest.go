// Package pgtest starts a disposable Postgres with the service schema applied.
package pgtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/projectbarber/barber/libs/db"
	"github.com/projectbarber/barber/services/booking-service/migrations"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

type Container struct {
	*postgres.PostgresContainer
	DSN  string
	Pool *db.Pool
}

// Start launches Postgres, migrates it and opens a pool. The test is skipped in
// -short mode or when no container runtime is reachable.
func Start(t testing.TB) *Container {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in -short mode")
	}

	ctx := context.Background()
	pg, err := startContainer(ctx)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	connStr, err := pg.PostgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	if err := db.Migrate(ctx, connStr, migrations.FS, migrations.Dir); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := db.Open(ctx, connStr, db.Options{MaxConns: 20})
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)

	pg.DSN = connStr
	pg.Pool = pool
	return pg
}

func startContainer(ctx context.Context) (c *Container, err error) {
	defer func() {
		// testcontainers panics when no Docker host can be found.
		if r := recover(); r != nil {
			c, err = nil, fmt.Errorf("%v", r)
		}
	}()
	pg, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("barber"),
		postgres.WithUsername("barber"),
		postgres.WithPassword("barber"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, err
	}
	return &Container{PostgresContainer: pg}, nil
}

// Truncate empties the mutable tables between tests, keeping the seeded catalog.
func (c *Container) Truncate(t testing.TB) {
	t.Helper()
	_, err := c.Pool.Exec(context.Background(),
		`TRUNCATE outbox_events, webhook_events, payments, appointments, customers`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}
