// Package e2e provisions the backing services the end-to-end tests share.
package e2e

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/glizzus/chime-off/internal/datalayer"
	"github.com/glizzus/chime-off/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

var (
	pgOnce            sync.Once
	postgresContainer *postgres.PostgresContainer
	pgConnStr         string
	pgStartErr        error
	pgWG              sync.WaitGroup
	databases         atomic.Int64
)

// UsePostgres signals that the test is using Postgres as its database.
// This will either provision or reuse a Postgres container for the test.
func UsePostgres(t *testing.T) string {
	t.Helper()

	pgOnce.Do(func() {
		ctx := context.Background()
		postgresContainer, pgStartErr = postgres.Run(
			ctx,
			"postgres",
			postgres.WithDatabase("chime"),
			postgres.WithUsername("user"),
			postgres.WithPassword("password"),
			postgres.BasicWaitStrategies(),
		)
		if pgStartErr != nil {
			return
		}
		pgConnStr, pgStartErr = postgresContainer.ConnectionString(ctx)
	})

	if pgStartErr != nil {
		t.Fatalf("failed to start postgres container: %v", pgStartErr)
	}
	pgWG.Add(1)
	t.Cleanup(pgWG.Done)

	return pgConnStr
}

// PostgresKV creates a migrated database of its own for the test, so tests
// sharing the container never see each other's settings.
func PostgresKV(t *testing.T) *repository.PostgresKV {
	t.Helper()
	connStr := UsePostgres(t)
	ctx := t.Context()

	name := fmt.Sprintf("chime_e2e_%d", databases.Add(1))
	admin, err := pgx.Connect(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	defer admin.Close(ctx)
	if _, err := admin.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
		t.Fatalf("failed to create database %s: %v", name, err)
	}

	u, err := url.Parse(connStr)
	if err != nil {
		t.Fatalf("failed to parse connection string: %v", err)
	}
	u.Path = "/" + name

	pool, err := pgxpool.New(ctx, u.String())
	if err != nil {
		t.Fatalf("failed to create postgres pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := datalayer.MigratePostgres(pool); err != nil {
		t.Fatalf("failed to migrate %s: %v", name, err)
	}
	return repository.NewPostgresKV(pool)
}

func TerminatePostgresForE2E() {
	pgWG.Wait()
	if postgresContainer != nil {
		err := postgresContainer.Terminate(context.Background())
		if err != nil {
			fmt.Printf("failed to terminate postgres container: %v", err)
		}
	}
}

var (
	redisOnce      sync.Once
	redisContainer *tcredis.RedisContainer
	redisURI       string
	redisStartErr  error
	redisWG        sync.WaitGroup
)

// UseRedis provisions or reuses a Redis container and returns a client for
// the test.
func UseRedis(t *testing.T) *goredis.Client {
	t.Helper()

	redisOnce.Do(func() {
		ctx := context.Background()
		redisContainer, redisStartErr = tcredis.Run(ctx, "redis:7")
		if redisStartErr != nil {
			return
		}
		redisURI, redisStartErr = redisContainer.ConnectionString(ctx)
	})

	if redisStartErr != nil {
		t.Fatalf("failed to start redis container: %v", redisStartErr)
	}
	redisWG.Add(1)
	t.Cleanup(redisWG.Done)

	opts, err := goredis.ParseURL(redisURI)
	if err != nil {
		t.Fatalf("failed to parse redis url: %v", err)
	}
	client := goredis.NewClient(opts)
	t.Cleanup(func() { client.Close() })
	return client
}

// RedisKey returns a key unique to the test.
func RedisKey(t *testing.T, kind string) string {
	return "chime:e2e:" + kind + ":" + strings.ReplaceAll(t.Name(), "/", ":")
}

func TerminateRedisForE2E() {
	redisWG.Wait()
	if redisContainer != nil {
		err := redisContainer.Terminate(context.Background())
		if err != nil {
			fmt.Printf("failed to terminate redis container: %v", err)
		}
	}
}
