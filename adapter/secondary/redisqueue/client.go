// Package redisqueue implements secondary.QueueStore and a health checker
// over Redis sorted sets, adapted from the teacher's redisstore package.
package redisqueue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisMode selects the Redis deployment topology, mirroring the teacher's
// config.RedisMode switch.
type RedisMode string

const (
	ModeStandalone RedisMode = "standalone"
	ModeSentinel   RedisMode = "sentinel"
	ModeCluster    RedisMode = "cluster"
)

// ClientConfig is the subset of connection settings NewClient needs.
type ClientConfig struct {
	Mode          RedisMode
	Addr          string
	Password      string
	DB            int
	SentinelAddrs []string
	MasterName    string
	ClusterAddrs  []string
}

// NewClient builds a redis.UniversalClient for mode cfg.Mode and verifies
// the connection with a ping (spec §6 persistence contracts).
func NewClient(ctx context.Context, cfg ClientConfig, logger *zap.Logger) (redis.UniversalClient, error) {
	var client redis.UniversalClient

	switch cfg.Mode {
	case ModeSentinel:
		client = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.MasterName,
			SentinelAddrs: cfg.SentinelAddrs,
			Password:      cfg.Password,
			DB:            cfg.DB,
		})
		logger.Info("connecting to redis via sentinel",
			zap.String("master", cfg.MasterName),
			zap.Strings("sentinels", cfg.SentinelAddrs),
		)

	case ModeCluster:
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    cfg.ClusterAddrs,
			Password: cfg.Password,
		})
		logger.Info("connecting to redis cluster", zap.Strings("addrs", cfg.ClusterAddrs))

	default:
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		logger.Info("connecting to redis standalone", zap.String("addr", cfg.Addr))
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// HealthCheck implements secondary.HealthChecker for Redis.
type HealthCheck struct {
	client redis.UniversalClient
	name   string
}

// NewHealthCheck creates a Redis health checker labeled name (e.g. "redis-queue").
func NewHealthCheck(client redis.UniversalClient, name string) *HealthCheck {
	return &HealthCheck{client: client, name: name}
}

func (h *HealthCheck) Name() string { return h.name }

func (h *HealthCheck) Check(ctx context.Context) error {
	return h.client.Ping(ctx).Err()
}
