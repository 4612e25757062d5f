package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

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

// SetStockSnapshot mirrors a product's stock counter. The database remains
// authoritative; the snapshot only serves cheap availability reads.
func (c *Client) SetStockSnapshot(ctx context.Context, productID int64, stock int) error {
	key := fmt.Sprintf("stock:%d", productID)
	return c.rdb.Set(ctx, key, stock, 0).Err()
}

// GetStockSnapshot returns the mirrored stock level. The second return is
// false when no snapshot exists and the caller should fall back to the DB.
func (c *Client) GetStockSnapshot(ctx context.Context, productID int64) (int, bool, error) {
	key := fmt.Sprintf("stock:%d", productID)

	stock, err := c.rdb.Get(ctx, key).Int()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return stock, true, nil
}

// MarkCallbackSeen records a gateway callback reference with a TTL. Returns
// true the first time a reference is seen, false on replays. This is only a
// fast pre-check; the payment row status inside the transaction is the real
// idempotency guard.
func (c *Client) MarkCallbackSeen(ctx context.Context, provider, externalRef string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("callback:%s:%s", provider, externalRef)
	return c.rdb.SetNX(ctx, key, "1", ttl).Result()
}

// ClearCallbackSeen drops a callback marker so the gateway's retry of the
// same reference is processed again. Called when settlement fails after
// the marker was set.
func (c *Client) ClearCallbackSeen(ctx context.Context, provider, externalRef string) error {
	key := fmt.Sprintf("callback:%s:%s", provider, externalRef)
	return c.rdb.Del(ctx, key).Err()
}

// CacheJSON stores a JSON-encoded value with a TTL.
func (c *Client) CacheJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

// GetJSON loads a cached value into dest. Returns false on a cache miss.
func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return true, nil
}

// InvalidateKey drops a cached value.
func (c *Client) InvalidateKey(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}
