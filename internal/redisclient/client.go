package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

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

// Ping checks the connection is alive
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func paymentLinkKey(orderID string) string {
	return fmt.Sprintf("payment-link:%s", orderID)
}

// GetPaymentLink returns the cached checkout URL of an order, if any
func (c *Client) GetPaymentLink(ctx context.Context, orderID string) (string, bool, error) {
	link, err := c.rdb.Get(ctx, paymentLinkKey(orderID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read payment link: %w", err)
	}
	return link, true, nil
}

// SetPaymentLink caches a checkout URL unless one is already stored. Reports whether this call stored it.
func (c *Client) SetPaymentLink(ctx context.Context, orderID, link string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, paymentLinkKey(orderID), link, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to cache payment link: %w", err)
	}
	return ok, nil
}

// DeletePaymentLink drops the cached link of an order
func (c *Client) DeletePaymentLink(ctx context.Context, orderID string) error {
	return c.rdb.Del(ctx, paymentLinkKey(orderID)).Err()
}
