package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// finalizeLockTTL bounds how long a crashed finalization can keep an
// order locked.
const finalizeLockTTL = 30 * time.Second

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AcquireFinalizeLock takes the per-order finalization lock. The state
// filter in the store already rejects a late second finalize; the lock
// additionally serializes two finalize calls racing on the same
// still-initiated record.
func (c *Client) AcquireFinalizeLock(ctx context.Context, orderID uint64) (bool, error) {
	return c.rdb.SetNX(ctx, finalizeLockKey(orderID), "1", finalizeLockTTL).Result()
}

// ReleaseFinalizeLock releases the per-order finalization lock.
func (c *Client) ReleaseFinalizeLock(ctx context.Context, orderID uint64) error {
	return c.rdb.Del(ctx, finalizeLockKey(orderID)).Err()
}

func finalizeLockKey(orderID uint64) string {
	return fmt.Sprintf("finalize-lock:%d", orderID)
}
