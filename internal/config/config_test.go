package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func resetViper() {
	viper.Reset()
}

func TestLoad_defaults(t *testing.T) {
	resetViper()
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.Environment != "local" {
		t.Errorf("Environment = %q, want local", cfg.Environment)
	}
	if cfg.ConfigCacheTTL != 30*time.Second {
		t.Errorf("ConfigCacheTTL = %v, want 30s", cfg.ConfigCacheTTL)
	}
	if cfg.Postgres.MaxConns != 10 || cfg.Postgres.MinConns != 1 {
		t.Errorf("unexpected postgres pool defaults: %+v", cfg.Postgres)
	}
	if cfg.Redis.Mode != "standalone" || cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("unexpected redis defaults: %+v", cfg.Redis)
	}
	if cfg.Worker.RepairBatchSize != 25 || cfg.Worker.QueueBatchSize != 50 {
		t.Errorf("unexpected worker defaults: %+v", cfg.Worker)
	}
}

func TestLoad_fromEnvironment(t *testing.T) {
	resetViper()
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("POSTGRES_DSN", "postgres://user:pass@db/corepay")
	t.Setenv("REDIS_ADDR", "redis-host:6380")
	t.Setenv("REDIS_MODE", "sentinel")
	t.Setenv("FRAUD_API_URL", "https://fraud.example.com/assess")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
	}
	if cfg.Postgres.DSN != "postgres://user:pass@db/corepay" {
		t.Errorf("Postgres.DSN = %q", cfg.Postgres.DSN)
	}
	if cfg.Redis.Addr != "redis-host:6380" || cfg.Redis.Mode != "sentinel" {
		t.Errorf("unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.FraudAPIURL != "https://fraud.example.com/assess" {
		t.Errorf("FraudAPIURL = %q", cfg.FraudAPIURL)
	}
}
