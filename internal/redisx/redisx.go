package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const statusTTL = 5 * time.Minute

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func orderStatusKey(orderID int64) string {
	return fmt.Sprintf("order:%d:status", orderID)
}

// StatusCache is a read-through cache for order status. Postgres stays the
// source of truth; entries are short-lived and invalidated on every
// transition.
type StatusCache struct {
	RDB *redis.Client
}

func (c *StatusCache) Get(ctx context.Context, orderID int64) (string, bool) {
	if c == nil || c.RDB == nil {
		return "", false
	}
	v, err := c.RDB.Get(ctx, orderStatusKey(orderID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		return "", false
	}
	return v, true
}

func (c *StatusCache) Set(ctx context.Context, orderID int64, status string) {
	if c == nil || c.RDB == nil {
		return
	}
	c.RDB.Set(ctx, orderStatusKey(orderID), status, statusTTL)
}

func (c *StatusCache) Invalidate(ctx context.Context, orderID int64) {
	if c == nil || c.RDB == nil {
		return
	}
	c.RDB.Del(ctx, orderStatusKey(orderID))
}
