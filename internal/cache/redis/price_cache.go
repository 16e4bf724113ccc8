package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/holiman/uint256"
	"github.com/redis/go-redis/v9"

	"github.com/quorumlabs/launchpad/internal/domain"
)

// priceTTL bounds staleness: a missing key falls back to the curve, so letting
// entries expire keeps the cache self-healing after crashes mid-trade.
const priceTTL = 5 * time.Minute

// PriceCache implements domain.PriceCache using Redis hashes. Each market's
// spot price is stored at key "price:{marketID}" with fields "price" (decimal
// string, 18-decimal fixed point) and "ts" (Unix nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(marketID int64) string {
	return "price:" + strconv.FormatInt(marketID, 10)
}

// SetPrice stores the latest spot price and timestamp for a market.
func (pc *PriceCache) SetPrice(ctx context.Context, marketID int64, price *uint256.Int, ts time.Time) error {
	key := priceKey(marketID)
	fields := map[string]interface{}{
		"price": price.Dec(),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, priceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %d: %w", marketID, err)
	}
	return nil
}

// GetPrice retrieves the latest spot price and timestamp for a market.
// It returns domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetPrice(ctx context.Context, marketID int64) (*uint256.Int, time.Time, error) {
	key := priceKey(marketID)
	vals, err := pc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: get price %d: %w", marketID, err)
	}
	if len(vals) == 0 {
		return nil, time.Time{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	price, err := uint256.FromDecimal(priceStr)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: parse price %d: %w", marketID, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: parse ts %d: %w", marketID, err)
	}

	return price, time.Unix(0, tsNano), nil
}

// Invalidate drops the cached price for a market.
func (pc *PriceCache) Invalidate(ctx context.Context, marketID int64) error {
	if err := pc.rdb.Del(ctx, priceKey(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate price %d: %w", marketID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
