package redisqueue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ruudy-sib/corepay/core/port/secondary"
)

const cacheKeyPrefix = "corepay:lastgood:"

// Cache implements secondary.LastKnownGoodCache over plain Redis key/value
// pairs with a TTL, the simplest possible persistence for C3's CACHED
// fallback strategy.
type Cache struct {
	client redis.UniversalClient
	logger *zap.Logger
}

// NewCache builds a redisqueue.Cache.
func NewCache(client redis.UniversalClient, logger *zap.Logger) secondary.LastKnownGoodCache {
	return &Cache{client: client, logger: logger.Named("redis-cache")}
}

func (c *Cache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, cacheKeyPrefix+key, value, ttl).Err()
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, cacheKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}
