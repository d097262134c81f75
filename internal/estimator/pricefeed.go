package estimator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/carbonmax/carbonmax/internal/apperrors"
	"github.com/carbonmax/carbonmax/internal/money"
)

// PriceFeed supplies the current market price per tonne.
type PriceFeed interface {
	CurrentPrice(ctx context.Context) (decimal.Decimal, error)
}

// StaticPriceFeed always reports the same price.
type StaticPriceFeed struct {
	Price decimal.Decimal
}

// CurrentPrice returns the configured price.
func (f StaticPriceFeed) CurrentPrice(context.Context) (decimal.Decimal, error) {
	return f.Price, nil
}

const marketPriceKey = "market:price:v1"

// RedisPriceFeed reads an admin-published price from Redis and falls back to a static
// price while none has been published or Redis is unreachable.
type RedisPriceFeed struct {
	cache    *redis.Client
	fallback decimal.Decimal
	logger   *slog.Logger
}

// NewRedisPriceFeed builds a Redis-backed price feed.
func NewRedisPriceFeed(cache *redis.Client, fallback decimal.Decimal, logger *slog.Logger) *RedisPriceFeed {
	return &RedisPriceFeed{cache: cache, fallback: fallback, logger: logger}
}

// CurrentPrice returns the published price or the fallback.
func (f *RedisPriceFeed) CurrentPrice(ctx context.Context) (decimal.Decimal, error) {
	raw, err := f.cache.Get(ctx, marketPriceKey).Result()
	if errors.Is(err, redis.Nil) {
		return f.fallback, nil
	}
	if err != nil {
		f.logger.Warn("price feed lookup failed, using fallback", slog.Any("error", err))
		return f.fallback, nil
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		f.logger.Warn("stored market price is malformed", slog.String("value", raw))
		return f.fallback, nil
	}
	return price, nil
}

// Publish stores a new market price.
func (f *RedisPriceFeed) Publish(ctx context.Context, price decimal.Decimal) error {
	if err := money.CheckPositive("market price", price); err != nil {
		return err
	}
	if err := f.cache.Set(ctx, marketPriceKey, price.String(), 0).Err(); err != nil {
		return apperrors.Unavailable(fmt.Errorf("publish market price: %w", err))
	}
	return nil
}
