// Package config loads the standalone corepay process's bootstrap
// configuration from environment variables via viper, mirroring the
// reference payments service's viper.AutomaticEnv + mapstructure pattern.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// PostgresConfig holds the connection-pool settings for the config/clearing
// repository.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// RedisConfig holds the queue/repair/cache store's connection settings.
type RedisConfig struct {
	Mode          string   `mapstructure:"mode"`
	Addr          string   `mapstructure:"addr"`
	Password      string   `mapstructure:"password"`
	DB            int      `mapstructure:"db"`
	MasterName    string   `mapstructure:"master_name"`
	SentinelAddrs []string `mapstructure:"sentinel_addrs"`
	ClusterAddrs  []string `mapstructure:"cluster_addrs"`
}

// CoreBankConfig holds the REST core-banking client's settings.
type CoreBankConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// WorkerConfig holds the repair and queue background loops' cadence.
type WorkerConfig struct {
	RepairPollInterval time.Duration `mapstructure:"repair_poll_interval"`
	RepairBatchSize    int           `mapstructure:"repair_batch_size"`
	QueuePollInterval  time.Duration `mapstructure:"queue_poll_interval"`
	QueueBatchSize     int           `mapstructure:"queue_batch_size"`
	QueueReclaimEvery  int           `mapstructure:"queue_reclaim_every"`
	QueueReclaimCutoff time.Duration `mapstructure:"queue_reclaim_cutoff"`
}

// AppConfig is the root bootstrap configuration for cmd/corepay.
type AppConfig struct {
	HTTPAddr       string          `mapstructure:"http_addr"`
	Environment    string          `mapstructure:"environment"`
	LogLevel       string          `mapstructure:"log_level"`
	FraudAPIURL    string          `mapstructure:"fraud_api_url"`
	ConfigCacheTTL time.Duration   `mapstructure:"config_cache_ttl"`
	Postgres       *PostgresConfig `mapstructure:"postgres"`
	Redis          *RedisConfig    `mapstructure:"redis"`
	CoreBank       *CoreBankConfig `mapstructure:"core_bank"`
	Worker         *WorkerConfig   `mapstructure:"worker"`
}

// Load reads the process configuration from the environment, applying
// defaults for anything unset.
func Load() (*AppConfig, error) {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("http_addr", ":8080")
	viper.SetDefault("environment", "local")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("config_cache_ttl", 30*time.Second)

	viper.SetDefault("postgres.max_conns", 10)
	viper.SetDefault("postgres.min_conns", 1)
	viper.SetDefault("postgres.max_conn_lifetime", time.Hour)

	viper.SetDefault("redis.mode", "standalone")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("core_bank.timeout", 10*time.Second)

	viper.SetDefault("worker.repair_poll_interval", 5*time.Second)
	viper.SetDefault("worker.repair_batch_size", 25)
	viper.SetDefault("worker.queue_poll_interval", 1*time.Second)
	viper.SetDefault("worker.queue_batch_size", 50)
	viper.SetDefault("worker.queue_reclaim_every", 30)
	viper.SetDefault("worker.queue_reclaim_cutoff", 2*time.Minute)

	_ = viper.BindEnv("postgres.dsn", "POSTGRES_DSN")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.master_name", "REDIS_MASTER_NAME")
	_ = viper.BindEnv("core_bank.base_url", "CORE_BANK_BASE_URL")
	_ = viper.BindEnv("fraud_api_url", "FRAUD_API_URL")

	var cfg AppConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.Postgres == nil {
		cfg.Postgres = &PostgresConfig{}
	}
	if cfg.Redis == nil {
		cfg.Redis = &RedisConfig{}
	}
	if cfg.CoreBank == nil {
		cfg.CoreBank = &CoreBankConfig{}
	}
	if cfg.Worker == nil {
		cfg.Worker = &WorkerConfig{}
	}
	return &cfg, nil
}
