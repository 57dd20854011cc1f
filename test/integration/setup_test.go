package integration

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/rendezvous/rendezvous/internal/platform/db"
	"github.com/rendezvous/rendezvous/migrations"
)

// testDB holds the shared database infrastructure for integration tests.
type testDB struct {
	Pool    *pgxpool.Pool
	ConnStr string
}

var (
	setupOnce sync.Once
	globalDB  *testDB
	setupErr  error
	cleanup   func()
)

func TestMain(m *testing.M) {
	code := m.Run()
	if cleanup != nil {
		cleanup()
	}
	os.Exit(code)
}

// database starts the shared Postgres container on first use and returns a
// migrated, empty database. Tests are skipped under -short or when no
// container runtime is reachable.
func database(t *testing.T) *testDB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	setupOnce.Do(func() {
		globalDB, cleanup, setupErr = setupPostgresContainer(context.Background())
	})
	if setupErr != nil {
		t.Fatalf("setup postgres: %v", setupErr)
	}
	truncateAll(t, globalDB.Pool)
	return globalDB
}

// setupPostgresContainer starts postgres:16-alpine and applies the embedded
// migrations.
func setupPostgresContainer(ctx context.Context) (*testDB, func(), error) {
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("rendezvous"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("start postgres container: %w", err)
	}
	terminate := func() { _ = ctr.Terminate(context.Background()) }

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		terminate()
		return nil, nil, fmt.Errorf("connection string: %w", err)
	}

	pool, err := db.NewPool(ctx, connStr, db.PoolOptions{MaxConns: 10, MinConns: 1}, zerolog.Nop())
	if err != nil {
		terminate()
		return nil, nil, err
	}

	migrateCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if _, err := db.NewMigrator(pool, migrations.FS).Up(migrateCtx); err != nil {
		pool.Close()
		terminate()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	return &testDB{Pool: pool, ConnStr: connStr}, func() {
		pool.Close()
		terminate()
	}, nil
}

func truncateAll(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	if _, err := pool.Exec(context.Background(), `TRUNCATE appointment, app_user, attachment`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
}
