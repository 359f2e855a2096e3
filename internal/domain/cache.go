package domain

import (
	"context"
	"time"
)

// MarketCache stores the latest normalized markets per event.
type MarketCache interface {
	SetMarkets(ctx context.Context, eventID string, markets []Market) error
	GetMarkets(ctx context.Context, eventID string) ([]Market, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
