// Package testcontainers spins up disposable Postgres and Redis
// containers for integration tests and tears them down afterwards.
// Docker must be available; tests using it should gate on -short.
package testcontainers

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
)

const startupTimeout = 60 * time.Second

// TestContext bundles the containers and ready-to-use connections.
type TestContext struct {
	Postgres *PostgresContainer
	Redis    *RedisContainer
	DB       *pgxpool.Pool
	RDB      *goredis.Client

	t   *testing.T
	ctx context.Context
}

// NewTestContext starts both containers and opens connections. It fails
// the test on any startup error.
func NewTestContext(t *testing.T) *TestContext {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	pg, err := NewPostgresContainer(ctx)
	if err != nil {
		t.Fatalf("postgres container: %v", err)
	}

	rd, err := NewRedisContainer(ctx)
	if err != nil {
		_ = pg.Terminate(context.Background())
		t.Fatalf("redis container: %v", err)
	}

	pool, err := pgxpool.New(ctx, pg.DSN())
	if err != nil {
		_ = pg.Terminate(context.Background())
		_ = rd.Terminate(context.Background())
		t.Fatalf("pgx pool: %v", err)
	}

	rdb := goredis.NewClient(&goredis.Options{Addr: rd.Addr()})

	return &TestContext{
		Postgres: pg,
		Redis:    rd,
		DB:       pool,
		RDB:      rdb,
		t:        t,
		ctx:      context.Background(),
	}
}

// Cleanup closes connections and terminates both containers.
func (tc *TestContext) Cleanup() {
	tc.t.Helper()

	tc.DB.Close()
	_ = tc.RDB.Close()

	if err := tc.Postgres.Terminate(tc.ctx); err != nil {
		tc.t.Logf("failed to terminate postgres container: %v", err)
	}

	if err := tc.Redis.Terminate(tc.ctx); err != nil {
		tc.t.Logf("failed to terminate redis container: %v", err)
	}
}

// WithTestContext runs fn against a fresh test context and cleans up.
func WithTestContext(t *testing.T, fn func(tc *TestContext)) {
	t.Helper()

	tc := NewTestContext(t)
	defer tc.Cleanup()

	fn(tc)
}
