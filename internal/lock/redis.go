package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"finledger/internal/log"
)

const (
	defaultTTL       = 30 * time.Second
	releaseTimeout   = 5 * time.Second
	minBackoff       = 10 * time.Millisecond
	maxBackoff       = 500 * time.Millisecond
	defaultKeyPrefix = "finledger:lock:"
)

// Redis is a distributed Locker built on redislock. The lock TTL bounds how
// long a crashed holder can block a user; mutations must finish well within it.
type Redis struct {
	client *redislock.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

// NewRedis wraps an existing go-redis client.
func NewRedis(rdb redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		client: redislock.New(rdb),
		ttl:    ttl,
		prefix: defaultKeyPrefix,
		logger: log.WithComponent(logger, log.ComponentLock),
	}
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr string, ttl time.Duration, logger *slog.Logger) (*Redis, *redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: 50,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedis(rdb, ttl, logger), rdb, nil
}

// Lock retries with exponential backoff until ctx is done. Without a ctx
// deadline redislock gives up after one TTL.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	l, err := r.client.Obtain(ctx, r.prefix+key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.ExponentialBackoff(minBackoff, maxBackoff),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's context may already be cancelled
			rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			if err := l.Release(rctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				r.logger.Warn("Failed to release lock", "key", key, "error", err)
			}
		})
	}, nil
}
