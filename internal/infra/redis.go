package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// mirrorTimeout caps each Redis call; view publishing must never stall rendering.
const mirrorTimeout = 2 * time.Second

// NewRedisClient connects to the Redis instance backing the view mirror,
// idempotency keys and rate limits.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opt.ReadTimeout == 0 || opt.ReadTimeout > mirrorTimeout {
		opt.ReadTimeout = mirrorTimeout
	}
	if opt.WriteTimeout == 0 || opt.WriteTimeout > mirrorTimeout {
		opt.WriteTimeout = mirrorTimeout
	}

	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
