package platform

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// NewCacheClient creates the Redis client backing C1 from the given URL.
func NewCacheClient(ctx context.Context, cacheURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(cacheURL)
	if err != nil {
		return nil, fmt.Errorf("parsing cache URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging cache: %w", err)
	}

	return client, nil
}
