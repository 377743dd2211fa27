package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Options configures the redis client.
type Options struct {
	Addr     string
	Password string
	DB       int
}

const (
	connectAttempts = 5
	retryDelay      = 2 * time.Second
)

// Connect opens a redis client and waits for it to answer PING.
func Connect(ctx context.Context, opts Options, logger *zap.Logger) (*redis.Client, error) {
	log := logger.With(zap.String("addr", opts.Addr), zap.Int("db", opts.DB))

	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	var err error
	for i := 0; i < connectAttempts; i++ {
		if err = rdb.Ping(ctx).Err(); err == nil {
			log.Info("connected to redis")
			return rdb, nil
		}
		log.Warn("redis not ready, retrying", zap.Int("attempt", i+1), zap.Error(err))

		select {
		case <-ctx.Done():
			_ = rdb.Close()
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}

	_ = rdb.Close()
	return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
}

// Ping returns a readiness check for rdb.
func Ping(rdb redis.UniversalClient) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
