package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// PriceSource provides wholesale spot prices for a price area.
type PriceSource interface {
	SpotPricesFor(ctx context.Context, priceArea string, start, end time.Time) (SpotPriceSeries, error)
}

// PriceCache fronts a PriceSource with a redis cache. Historical spot
// prices never change, so cached series are safe to reuse for the TTL.
// Cache failures degrade to the underlying source.
type PriceCache struct {
	source PriceSource
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewPriceCache constructs the cache.
func NewPriceCache(source PriceSource, client *redis.Client, ttl time.Duration, logger *slog.Logger) *PriceCache {
	return &PriceCache{source: source, client: client, ttl: ttl, logger: logger}
}

// SpotPricesFor returns the cached series when present, loading and
// caching it otherwise.
func (c *PriceCache) SpotPricesFor(ctx context.Context, priceArea string, start, end time.Time) (SpotPriceSeries, error) {
	if c.client == nil {
		return c.source.SpotPricesFor(ctx, priceArea, start, end)
	}
	key := fmt.Sprintf("spot:%s:%d:%d", priceArea, start.Unix(), end.Unix())
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var series SpotPriceSeries
		if err := json.Unmarshal(raw, &series); err == nil {
			return series, nil
		}
		c.logger.Warn("price cache entry corrupt, reloading", slog.String("key", key))
	} else if err != redis.Nil {
		c.logger.Warn("price cache read", slog.Any("error", err))
	}

	// Concurrent settlement runs over the same area and period share one
	// load instead of hammering the source.
	v, err, _ := c.group.Do(key, func() (any, error) {
		series, err := c.source.SpotPricesFor(ctx, priceArea, start, end)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(series); err == nil {
			if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
				c.logger.Warn("price cache write", slog.Any("error", err))
			}
		}
		return series, nil
	})
	if err != nil {
		return SpotPriceSeries{}, err
	}
	return v.(SpotPriceSeries), nil
}
