package repository_test

import (
	"errors"
	"testing"

	"github.com/glizzus/chime-off/internal/datalayer"
	"github.com/glizzus/chime-off/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestPostgresKV(t *testing.T) {
	ctx := t.Context()
	postgresContainer, err := postgres.Run(
		ctx,
		"postgres",
		postgres.WithDatabase("chime"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate postgres container: %v", err)
		}
	}()

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to create postgres pool: %v", err)
	}
	defer pool.Close()

	if err := datalayer.MigratePostgres(pool); err != nil {
		t.Fatalf("failed to migrate postgres: %v", err)
	}

	kv := repository.NewPostgresKV(pool)
	exerciseKV(t, kv)

	t.Run("The settings should be saved as rows in the database", func(t *testing.T) {
		var value string
		err := pool.QueryRow(ctx, "SELECT value FROM settings WHERE key = $1", "timeOfDay").Scan(&value)
		if err != nil {
			t.Fatalf("failed to query setting: %v", err)
		}
		if value != "09:30" {
			t.Errorf("timeOfDay = %q; want %q", value, "09:30")
		}
	})

	t.Run("A closed pool reports the store as unavailable", func(t *testing.T) {
		closed, err := pgxpool.New(ctx, connStr)
		if err != nil {
			t.Fatalf("failed to create postgres pool: %v", err)
		}
		closed.Close()

		_, err = repository.NewPostgresKV(closed).Get(ctx, "isActive")
		var unavailable *repository.UnavailableError
		if !errors.As(err, &unavailable) {
			t.Fatalf("Get on a closed pool = %v; want UnavailableError", err)
		}
	})
}
