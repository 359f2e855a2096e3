package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/cricbot/internal/domain"
)

// DefaultMarketTTL bounds how long a snapshot outlives its prefetch.
const DefaultMarketTTL = 10 * time.Minute

// MarketCache implements domain.MarketCache using one Redis hash per event
// holding the JSON-serialized normalized markets.
//
// Key schema:
//
//	markets:{eventID} - hash with fields "data" (JSON []Market) and "count"
type MarketCache struct {
	c   *Client
	ttl time.Duration
}

// NewMarketCache creates a MarketCache backed by the given Client. A
// non-positive ttl selects DefaultMarketTTL.
func NewMarketCache(c *Client, ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = DefaultMarketTTL
	}
	return &MarketCache{c: c, ttl: ttl}
}

func (mc *MarketCache) key(eventID string) string {
	return mc.c.Key("markets:" + eventID)
}

// SetMarkets replaces the cached snapshot for eventID.
func (mc *MarketCache) SetMarkets(ctx context.Context, eventID string, markets []domain.Market) error {
	if markets == nil {
		markets = []domain.Market{}
	}
	data, err := json.Marshal(markets)
	if err != nil {
		return fmt.Errorf("redis: marshal markets %s: %w", eventID, err)
	}

	key := mc.key(eventID)
	pipe := mc.c.Underlying().TxPipeline()
	pipe.HSet(ctx, key, "data", data, "count", len(markets))
	pipe.Expire(ctx, key, mc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set markets %s: %w", eventID, err)
	}
	return nil
}

// GetMarkets returns the cached snapshot for eventID.
// It returns domain.ErrNotFound when nothing is cached.
func (mc *MarketCache) GetMarkets(ctx context.Context, eventID string) ([]domain.Market, error) {
	data, err := mc.c.Underlying().HGet(ctx, mc.key(eventID), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get markets %s: %w", eventID, err)
	}

	var markets []domain.Market
	if err := json.Unmarshal(data, &markets); err != nil {
		return nil, fmt.Errorf("redis: unmarshal markets %s: %w", eventID, err)
	}
	return markets, nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
