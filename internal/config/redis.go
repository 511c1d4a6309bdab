package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR, required"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB, default=0"`
	// SettingsKey is the hash holding the chime settings.
	SettingsKey string `env:"REDIS_SETTINGS_KEY, default=chime:settings"`
}

func NewRedisConfigFromEnv() (*RedisConfig, error) {
	return NewRedisConfigFromLookuper(envconfig.OsLookuper())
}

func NewRedisConfigFromLookuper(l envconfig.Lookuper) (*RedisConfig, error) {
	var cfg RedisConfig
	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	}); err != nil {
		return nil, err
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required")
	}
	if cfg.DB < 0 {
		return nil, fmt.Errorf("REDIS_DB must not be negative, got %d", cfg.DB)
	}
	return &cfg, nil
}
