// File: utils/cache.go
package utils

import (
	"context"
	"fmt"
	"time"

	"escrowbook/config"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
)

var (
	// CacheClient backs webhook dedupe and the health monitor.
	CacheClient *redis.Client
)

func newRedisClient(db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       db,
	})
}

// InitCache connects the cache client on REDIS_CACHE_DB.
func InitCache() error {
	client := newRedisClient(config.AppConfig.RedisCacheDB)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to Redis (cache): %w", err)
	}
	CacheClient = client
	return nil
}

// GetCacheClient returns the cache client, or nil when InitCache has not succeeded.
func GetCacheClient() *redis.Client {
	return CacheClient
}

// QueueRedisOpt is the asynq connection for the task queue on REDIS_QUEUE_DB.
func QueueRedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	}
}

// NewQueueMonitorClient is a plain redis client on the queue DB, used for liveness pings.
func NewQueueMonitorClient() *redis.Client {
	return newRedisClient(config.AppConfig.RedisQueueDB)
}
