package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"

	DispatcherLog     = "log"
	DispatcherFFPlay  = "ffplay"
	DispatcherDiscord = "discord"
)

type ChimeConfig struct {
	Store           string        `env:"CHIME_STORE, default=memory"`
	Dispatcher      string        `env:"CHIME_DISPATCHER, default=log"`
	SoundsDir       string        `env:"CHIME_SOUNDS_DIR, default=sounds"`
	Timezone        string        `env:"CHIME_TIMEZONE, default=Local"`
	SyncInterval    time.Duration `env:"CHIME_SYNC_INTERVAL, default=30s"`
	TimerResolution time.Duration `env:"CHIME_TIMER_RESOLUTION, default=1s"`
	LogLevel        string        `env:"CHIME_LOG_LEVEL, default=info"`
	FireStream      string        `env:"CHIME_FIRE_STREAM"`
	MaxUploadBytes  int64         `env:"CHIME_MAX_UPLOAD_BYTES, default=1048576"`
	EnableUploads   bool          `env:"CHIME_ENABLE_UPLOADS, default=false"`
}

func NewChimeConfigFromEnv() (*ChimeConfig, error) {
	return NewChimeConfigFromLookuper(envconfig.OsLookuper())
}

// NewChimeConfigFromLookuper is NewChimeConfigFromEnv with an explicit
// variable source, for tests.
func NewChimeConfigFromLookuper(l envconfig.Lookuper) (*ChimeConfig, error) {
	var cfg ChimeConfig
	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	}); err != nil {
		return nil, err
	}

	switch cfg.Store {
	case StoreMemory, StorePostgres, StoreRedis:
	default:
		return nil, fmt.Errorf("unknown CHIME_STORE %q", cfg.Store)
	}
	switch cfg.Dispatcher {
	case DispatcherLog, DispatcherFFPlay, DispatcherDiscord:
	default:
		return nil, fmt.Errorf("unknown CHIME_DISPATCHER %q", cfg.Dispatcher)
	}
	if cfg.SyncInterval <= 0 {
		return nil, fmt.Errorf("CHIME_SYNC_INTERVAL must be positive")
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("CHIME_MAX_UPLOAD_BYTES must be positive")
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	if _, err := cfg.Level(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Location resolves CHIME_TIMEZONE.
func (c *ChimeConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid CHIME_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Level resolves CHIME_LOG_LEVEL.
func (c *ChimeConfig) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid CHIME_LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}
