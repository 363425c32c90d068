// Package cache keeps the per-recipient notification feed in Redis lists.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/khushnawaj/scriptSelf-sub001/internal/domain"
)

type Config struct {
	Prefix string
	Size   int
	TTL    time.Duration
	// BreakerTimeout is how long the breaker stays open before probing Redis again.
	BreakerTimeout time.Duration
}

func (c *Config) defaults() {
	if c.Size <= 0 {
		c.Size = 50
	}
	if c.TTL <= 0 {
		c.TTL = time.Hour
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 10 * time.Second
	}
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		MaxRetries:   -1,
	})
}

// FeedCache is the Redis implementation of the notification feed cache.
// The list head is the newest notification.
type FeedCache struct {
	rdb redis.Cmdable
	cb  *gobreaker.CircuitBreaker
	cfg Config
}

func NewFeedCache(rdb redis.Cmdable, cfg Config) *FeedCache {
	cfg.defaults()
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notification-cache",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &FeedCache{rdb: rdb, cb: cb, cfg: cfg}
}

func (c *FeedCache) key(recipient string) string {
	return c.cfg.Prefix + "notifications:" + recipient
}

// Push adds n to the head of an existing feed. A missing feed stays missing
// so that the next read rebuilds it in full from the store.
func (c *FeedCache) Push(ctx context.Context, recipient string, n *domain.Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	key := c.key(recipient)
	return c.run(func() error {
		_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.LPushX(ctx, key, b)
			p.LTrim(ctx, key, 0, int64(c.cfg.Size-1))
			p.Expire(ctx, key, c.cfg.TTL)
			return nil
		})
		return err
	})
}

// Load returns the cached feed. An empty slice means a miss.
func (c *FeedCache) Load(ctx context.Context, recipient string) ([]*domain.Notification, error) {
	var raw []string
	err := c.run(func() error {
		var err error
		raw, err = c.rdb.LRange(ctx, c.key(recipient), 0, int64(c.cfg.Size-1)).Result()
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Notification, 0, len(raw))
	for _, s := range raw {
		var n domain.Notification
		if err := json.Unmarshal([]byte(s), &n); err != nil {
			// undecodable entry: report a miss so the store rebuilds the feed
			return nil, nil
		}
		out = append(out, &n)
	}
	return out, nil
}

// Replace rebuilds the feed from items, newest first.
func (c *FeedCache) Replace(ctx context.Context, recipient string, items []*domain.Notification) error {
	if len(items) > c.cfg.Size {
		items = items[:c.cfg.Size]
	}
	vals := make([]interface{}, 0, len(items))
	for _, n := range items {
		b, err := json.Marshal(n)
		if err != nil {
			return err
		}
		vals = append(vals, b)
	}
	key := c.key(recipient)
	return c.run(func() error {
		_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, key)
			if len(vals) > 0 {
				p.RPush(ctx, key, vals...)
				p.Expire(ctx, key, c.cfg.TTL)
			}
			return nil
		})
		return err
	})
}

func (c *FeedCache) Invalidate(ctx context.Context, recipient string) error {
	return c.run(func() error {
		return c.rdb.Del(ctx, c.key(recipient)).Err()
	})
}

func (c *FeedCache) run(fn func() error) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	return nil
}
