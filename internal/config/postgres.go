package config

import (
	"context"
	"fmt"
	"net/url"

	"github.com/sethvargo/go-envconfig"
)

type PostgresConfig struct {
	Host     string `env:"POSTGRES_HOST, required"`
	Port     string `env:"POSTGRES_PORT, default=5432"`
	Username string `env:"POSTGRES_USERNAME, required"`
	Password string `env:"POSTGRES_PASSWORD, required"`
	Database string `env:"POSTGRES_DATABASE, default=chime"`
	SSLMode  string `env:"POSTGRES_SSLMODE, default=disable"`
	// MaxConns caps the pool. The daemon needs very few connections.
	MaxConns int32 `env:"POSTGRES_MAX_CONNS, default=4"`
}

func NewPostgresConfigFromEnv() (*PostgresConfig, error) {
	return NewPostgresConfigFromLookuper(envconfig.OsLookuper())
}

func NewPostgresConfigFromLookuper(l envconfig.Lookuper) (*PostgresConfig, error) {
	var cfg PostgresConfig
	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	}); err != nil {
		return nil, err
	}
	if cfg.MaxConns < 1 {
		return nil, fmt.Errorf("POSTGRES_MAX_CONNS must be at least 1, got %d", cfg.MaxConns)
	}
	return &cfg, nil
}

func (c *PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   c.Host + ":" + c.Port,
		Path:   c.Database,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	q.Set("pool_max_conns", fmt.Sprint(c.MaxConns))
	u.RawQuery = q.Encode()
	return u.String()
}
