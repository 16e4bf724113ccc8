package domain

import (
	"context"
	"time"

	"github.com/holiman/uint256"
)

// PriceCache provides fast access to the latest curve price per market.
type PriceCache interface {
	SetPrice(ctx context.Context, marketID int64, price *uint256.Int, ts time.Time) error
	GetPrice(ctx context.Context, marketID int64) (*uint256.Int, time.Time, error)
	Invalidate(ctx context.Context, marketID int64) error
}

// LockManager provides cross-instance mutual exclusion. The in-process keyed
// mutexes in the engines serialize a single instance; a LockManager extends
// that to deployments running more than one replica.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub for domain events (trades, proposals, markets).
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter throttles requests per key under a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}
