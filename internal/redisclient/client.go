package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/cart"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/rate_limit.lua
var rateLimitScript string

//go:embed scripts/release_lock.lua
var releaseLockScript string

const catalogPrefix = "catalog:"

type Client struct {
	rdb           *redis.Client
	limitScript   *redis.Script
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
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

	return NewFromRedis(rdb), nil
}

// NewFromRedis wraps an existing connection.
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		limitScript:   redis.NewScript(rateLimitScript),
		releaseScript: redis.NewScript(releaseLockScript),
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func cartKey(sessionID string) string {
	return fmt.Sprintf("cart:%s", sessionID)
}

// GetCart loads the cart for a session, returning an empty cart when none is
// stored. Every read extends the session's TTL.
func (c *Client) GetCart(ctx context.Context, sessionID string, ttl time.Duration) (*cart.Cart, error) {
	key := cartKey(sessionID)

	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return cart.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	var ct cart.Cart
	if err := json.Unmarshal(data, &ct); err != nil {
		return nil, fmt.Errorf("failed to decode cart: %w", err)
	}
	if ct.Items == nil {
		ct.Items = []cart.Item{}
	}

	if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to extend cart ttl: %w", err)
	}
	return &ct, nil
}

// SaveCart stores the cart for a session
func (c *Client) SaveCart(ctx context.Context, sessionID string, ct *cart.Cart, ttl time.Duration) error {
	data, err := json.Marshal(ct)
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}
	return c.rdb.Set(ctx, cartKey(sessionID), data, ttl).Err()
}

// DeleteCart drops the cart for a session
func (c *Client) DeleteCart(ctx context.Context, sessionID string) error {
	return c.rdb.Del(ctx, cartKey(sessionID)).Err()
}

// SetIdempotencyKey stores an idempotency key with TTL
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Err()
}

// GetIdempotencyKey returns the value stored for an idempotency key
func (c *Client) GetIdempotencyKey(ctx context.Context, key string) (string, bool, error) {
	value, err := c.rdb.Get(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// GetCached decodes a cached catalog entry into dest
func (c *Client) GetCached(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, catalogPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
	}
	return true, nil
}

// SetCached stores a catalog entry
func (c *Client) SetCached(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}
	return c.rdb.Set(ctx, catalogPrefix+key, data, ttl).Err()
}

// InvalidateCatalog removes every cached catalog entry
func (c *Client) InvalidateCatalog(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, catalogPrefix+"*", 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// AcquireLock acquires a distributed lock and returns the token needed to
// release it. ok is false when someone else holds the lock.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (token string, ok bool, err error) {
	token = uuid.New().String()
	ok, err = c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// ReleaseLock releases a distributed lock if token still owns it
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

// Allow counts one hit against key and reports whether it fits in the window
func (c *Client) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	seconds := int(window / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	result, err := c.limitScript.Run(ctx, c.rdb, []string{fmt.Sprintf("ratelimit:%s", key)}, limit, seconds).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit script failed: %w", err)
	}

	allowed, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}
	return allowed == 1, nil
}
