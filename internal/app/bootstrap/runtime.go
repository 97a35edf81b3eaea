package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/guestpilot/internal/config"
	"github.com/wolfman30/guestpilot/internal/events"
	"github.com/wolfman30/guestpilot/internal/lock"
	"github.com/wolfman30/guestpilot/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildLocker returns a Redis-backed locker when a client is available and an
// in-process keyed mutex otherwise.
func BuildLocker(client *redis.Client, logger *logging.Logger) lock.Locker {
	if client == nil {
		return lock.NewKeyedMutex()
	}
	return lock.NewRedisLocker(client, 0, logger)
}

// BuildDeduper returns the WhatsApp redelivery store: Redis when available,
// then the postgres processed_events table, then process memory.
func BuildDeduper(client *redis.Client, pool *pgxpool.Pool) events.Deduper {
	switch {
	case client != nil:
		return events.NewRedisProcessedStore(client, events.DefaultProcessedTTL)
	case pool != nil:
		return events.NewProcessedStore(pool)
	default:
		return events.NewMemoryProcessedStore(events.DefaultProcessedTTL)
	}
}
