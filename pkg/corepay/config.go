package corepay

import (
	"time"

	"go.uber.org/zap"
)

// Config holds the configuration for an embedded Corepay instance,
// generalizing pkg/rebound.Config to this module's storage (Postgres +
// Redis) and transport (Kafka + HTTP) footprint.
type Config struct {
	// Postgres backs the config/clearing/mapping repository (spec §3/§6).
	PostgresDSN             string
	PostgresMaxConns        int32
	PostgresMinConns        int32
	PostgresMaxConnLifetime time.Duration

	// Redis mode: "standalone" (default), "sentinel", "cluster".
	RedisMode          string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RedisMasterName    string
	RedisSentinelAddrs []string
	RedisClusterAddrs  []string

	// HTTPTimeout bounds each outbound HTTP dispatch/send/assess call.
	HTTPTimeout time.Duration
	// FraudAPIURL is the fixed endpoint the HTTP fraud adapter posts to.
	FraudAPIURL string

	// ConfigCacheTTL is C1's resolved-config cache lifetime; 0 disables caching.
	ConfigCacheTTL time.Duration

	// RepairPollInterval/RepairBatchSize drive the repair worker (C7).
	RepairPollInterval time.Duration
	RepairBatchSize    int

	// QueuePollInterval/QueueBatchSize drive the queued-message loop (C8).
	QueuePollInterval  time.Duration
	QueueBatchSize     int
	QueueReclaimEvery  int
	QueueReclaimCutoff time.Duration

	// Logger, if nil, a production zap logger is created.
	Logger *zap.Logger
}

// DefaultConfig returns a Config with sensible defaults, mirroring
// pkg/rebound.DefaultConfig's role.
func DefaultConfig() *Config {
	return &Config{
		PostgresMaxConns:        10,
		PostgresMinConns:        1,
		PostgresMaxConnLifetime: time.Hour,
		RedisMode:               "standalone",
		RedisAddr:               "localhost:6379",
		HTTPTimeout:             10 * time.Second,
		ConfigCacheTTL:          30 * time.Second,
		RepairPollInterval:      5 * time.Second,
		RepairBatchSize:         25,
		QueuePollInterval:       1 * time.Second,
		QueueBatchSize:          50,
		QueueReclaimEvery:       30,
		QueueReclaimCutoff:      2 * time.Minute,
	}
}
