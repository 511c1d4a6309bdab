// Package app opens the backends selected by the CHIME_* configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/glizzus/chime-off/internal/config"
	"github.com/glizzus/chime-off/internal/datalayer"
	"github.com/glizzus/chime-off/internal/events"
	"github.com/glizzus/chime-off/internal/repository"
	"github.com/glizzus/chime-off/internal/sounds"
	"github.com/redis/go-redis/v9"
)

// LoadEnv loads a .env file if there is one.
func LoadEnv() error {
	if err := config.LoadEnv(); err != nil {
		if os.IsNotExist(err) {
			slog.Warn("No .env file found, continuing without it")
			return nil
		}
		return fmt.Errorf("failed to load .env file: %w", err)
	}
	return nil
}

// SetupLogging installs the default logger at the configured level.
func SetupLogging(cfg *config.ChimeConfig) error {
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

type Backends struct {
	KV    repository.KV
	Blobs datalayer.BlobStorage
	Redis *redis.Client

	closers []func() error
}

// Open connects the settings store and, when enabled, blob storage and the
// fire stream.
func Open(ctx context.Context, cfg *config.ChimeConfig) (_ *Backends, err error) {
	b := &Backends{}
	defer func() {
		if err != nil {
			err = errors.Join(err, b.Close())
		}
	}()

	switch cfg.Store {
	case config.StoreMemory:
		slog.Warn("Using the in-memory settings store, settings are lost on exit")
		b.KV = repository.NewMemoryKV()
	case config.StorePostgres:
		pool, err := datalayer.NewPostgresPoolFromEnv(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		b.closers = append(b.closers, func() error { pool.Close(); return nil })
		if err := datalayer.MigratePostgres(pool); err != nil {
			return nil, fmt.Errorf("failed to migrate postgres: %w", err)
		}
		b.KV = repository.NewPostgresKV(pool)
	case config.StoreRedis:
		client, rcfg, err := b.redis(ctx)
		if err != nil {
			return nil, err
		}
		b.KV = repository.NewRedisKV(client, rcfg.SettingsKey)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	switch {
	case cfg.EnableUploads && cfg.Store == config.StoreMemory:
		slog.Warn("Keeping uploaded sounds in memory, they are lost on exit")
		b.Blobs = datalayer.NewMemoryStorage()
	case cfg.EnableUploads:
		storage, err := datalayer.NewMinioStorageFromEnv()
		if err != nil {
			return nil, fmt.Errorf("failed to create minio storage: %w", err)
		}
		if err := storage.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure minio bucket: %w", err)
		}
		b.Blobs = storage
	}

	if cfg.FireStream != "" {
		if _, _, err := b.redis(ctx); err != nil {
			return nil, err
		}
	}

	slog.Info("Backends ready", "store", cfg.Store, "uploads", b.Blobs != nil, "fireStream", cfg.FireStream)
	return b, nil
}

func (b *Backends) redis(ctx context.Context) (*redis.Client, *config.RedisConfig, error) {
	rcfg, err := config.NewRedisConfigFromEnv()
	if err != nil {
		return nil, nil, err
	}
	if b.Redis == nil {
		client, err := datalayer.NewRedisClient(ctx, rcfg)
		if err != nil {
			return nil, nil, err
		}
		b.Redis = client
		b.closers = append(b.closers, client.Close)
	}
	return b.Redis, rcfg, nil
}

// Catalog builds the sound catalog over the built-in sounds directory.
func (b *Backends) Catalog(cfg *config.ChimeConfig) (*sounds.Catalog, error) {
	return sounds.NewCatalog(sounds.Options{
		Files:          os.DirFS(cfg.SoundsDir),
		KV:             b.KV,
		Blobs:          b.Blobs,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
}

// FireStream returns the fire stream, or nil when none is configured.
func (b *Backends) FireStream(cfg *config.ChimeConfig) *events.RedisPublisher {
	if cfg.FireStream == "" || b.Redis == nil {
		return nil
	}
	return events.NewRedisPublisher(b.Redis, cfg.FireStream)
}

func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	b.closers = nil
	return errors.Join(errs...)
}
