package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"rsi-cycle-tracker/market"
)

// PriceCache is a read-through market.Source cache. Bars are immutable once
// written, so the TTL only bounds how late a newly ingested bar shows up.
// Concurrent misses for the same key share one upstream call.
type PriceCache struct {
	next  market.Source
	redis *RedisClient
	ttl   time.Duration
	group singleflight.Group
	log   *zap.Logger
}

// NewPriceCache wraps next. A nil redis client disables the shared cache but
// keeps request coalescing.
func NewPriceCache(next market.Source, redis *RedisClient, ttl time.Duration, log *zap.Logger) *PriceCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PriceCache{next: next, redis: redis, ttl: ttl, log: log}
}

// Symbols implements market.Source.
func (c *PriceCache) Symbols(ctx context.Context) ([]string, error) {
	var out []string
	err := c.load(ctx, "prices:symbols", &out, func(ctx context.Context) (interface{}, error) {
		return c.next.Symbols(ctx)
	})
	return out, err
}

// History implements market.Source.
func (c *PriceCache) History(ctx context.Context, symbol string) ([]market.PriceBar, error) {
	var out []market.PriceBar
	err := c.load(ctx, fmt.Sprintf("prices:history:%s", symbol), &out, func(ctx context.Context) (interface{}, error) {
		return c.next.History(ctx, symbol)
	})
	return out, err
}

// LatestSession implements market.Source.
func (c *PriceCache) LatestSession(ctx context.Context) ([]market.PriceBar, error) {
	var out []market.PriceBar
	err := c.load(ctx, "prices:latest_session", &out, func(ctx context.Context) (interface{}, error) {
		return c.next.LatestSession(ctx)
	})
	return out, err
}

// Invalidate drops every cached entry, used after an import.
func (c *PriceCache) Invalidate(ctx context.Context, symbols ...string) error {
	if c.redis == nil {
		return nil
	}
	keys := []string{"prices:symbols", "prices:latest_session"}
	for _, s := range symbols {
		keys = append(keys, fmt.Sprintf("prices:history:%s", s))
	}
	return c.redis.Delete(ctx, keys...)
}

func (c *PriceCache) load(ctx context.Context, key string, dest interface{}, fetch func(ctx context.Context) (interface{}, error)) error {
	if c.redis != nil {
		if err := c.redis.Get(ctx, key, dest); err == nil {
			return nil
		}
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		val, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if c.redis != nil {
			if err := c.redis.Set(ctx, key, val, c.ttl); err != nil {
				c.log.Debug("price cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
		return val, nil
	})
	if err != nil {
		return err
	}

	switch d := dest.(type) {
	case *[]string:
		*d = v.([]string)
	case *[]market.PriceBar:
		*d = v.([]market.PriceBar)
	default:
		return fmt.Errorf("unsupported cache destination %T", dest)
	}
	return nil
}
