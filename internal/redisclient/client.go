package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/cart"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// releaseScript deletes a lock only while it still holds the caller's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client and checks the connection
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

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func cartKey(sessionID string) string {
	return fmt.Sprintf("cart:%s", sessionID)
}

func lockKey(key string) string {
	return fmt.Sprintf("lock:%s", key)
}

func revokedKey(tokenID string) string {
	return fmt.Sprintf("revoked:%s", tokenID)
}

// LoadCart returns the cart stored for a session, or an empty cart
func (c *Client) LoadCart(ctx context.Context, sessionID string) (*cart.Cart, error) {
	data, err := c.rdb.Get(ctx, cartKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return cart.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	crt := cart.New()
	if err := json.Unmarshal(data, crt); err != nil {
		return nil, fmt.Errorf("failed to decode cart: %w", err)
	}
	return crt, nil
}

// SaveCart stores a session's cart and refreshes its TTL. An empty cart is deleted.
func (c *Client) SaveCart(ctx context.Context, sessionID string, crt *cart.Cart, ttl time.Duration) error {
	if crt.IsEmpty() {
		return c.DeleteCart(ctx, sessionID)
	}

	data, err := json.Marshal(crt)
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}
	if err := c.rdb.Set(ctx, cartKey(sessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}

// DeleteCart removes a session's cart
func (c *Client) DeleteCart(ctx context.Context, sessionID string) error {
	return c.rdb.Del(ctx, cartKey(sessionID)).Err()
}

// Acquire takes a distributed lock and returns the token that owns it
func (c *Client) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, lockKey(key), token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// Release drops a lock held under token. A lock that expired and was taken
// by another holder is left alone.
func (c *Client) Release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, c.rdb, []string{lockKey(key)}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

// RevokeToken marks a session token as revoked until it would have expired
func (c *Client) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.rdb.Set(ctx, revokedKey(tokenID), "1", ttl).Err()
}

// IsTokenRevoked checks whether a session token was revoked
func (c *Client) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, revokedKey(tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
