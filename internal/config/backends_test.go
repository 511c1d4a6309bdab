package config_test

import (
	"testing"

	"github.com/glizzus/chime-off/internal/config"
	"github.com/google/go-cmp/cmp"
	"github.com/sethvargo/go-envconfig"
)

func TestPostgresConfig(t *testing.T) {
	cfg, err := config.NewPostgresConfigFromLookuper(envconfig.MapLookuper(map[string]string{
		"POSTGRES_HOST":     "db",
		"POSTGRES_USERNAME": "chime",
		"POSTGRES_PASSWORD": "p@ss word",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "postgres://chime:p%40ss%20word@db:5432/chime?pool_max_conns=4&sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q; want %q", got, want)
	}
}

func TestPostgresConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "missing host",
			env:  map[string]string{"POSTGRES_USERNAME": "u", "POSTGRES_PASSWORD": "p"},
		},
		{
			name: "no connections",
			env: map[string]string{
				"POSTGRES_HOST":      "db",
				"POSTGRES_USERNAME":  "u",
				"POSTGRES_PASSWORD":  "p",
				"POSTGRES_MAX_CONNS": "0",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := config.NewPostgresConfigFromLookuper(envconfig.MapLookuper(tt.env)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestRedisConfig(t *testing.T) {
	cfg, err := config.NewRedisConfigFromLookuper(envconfig.MapLookuper(map[string]string{
		"REDIS_ADDR": "localhost:6379",
		"REDIS_DB":   "2",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := &config.RedisConfig{Addr: "localhost:6379", DB: 2, SettingsKey: "chime:settings"}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}

	if _, err := config.NewRedisConfigFromLookuper(envconfig.MapLookuper(map[string]string{})); err == nil {
		t.Error("expected an error without REDIS_ADDR")
	}
}
