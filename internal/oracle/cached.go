package oracle

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/0xF16/price-bets/pkg/cache"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// CachedDecimalsConfig holds configuration for CachedDecimals.
type CachedDecimalsConfig struct {
	Feed   Feed
	Cache  cache.Cache
	TTL    time.Duration
	Logger *zap.Logger
}

// CachedDecimals wraps a Feed and serves decimals() from cache.
// A feed's decimals never change, so only the answer is read on every call.
type CachedDecimals struct {
	feed   Feed
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedDecimals creates a caching feed wrapper.
func NewCachedDecimals(cfg *CachedDecimalsConfig) (*CachedDecimals, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Feed == nil {
		return nil, errors.New("feed cannot be nil")
	}

	if cfg.Cache == nil {
		return nil, errors.New("cache cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &CachedDecimals{
		feed:   cfg.Feed,
		cache:  cfg.Cache,
		ttl:    ttl,
		logger: cfg.Logger,
	}, nil
}

// Address returns the wrapped feed address.
func (c *CachedDecimals) Address() common.Address {
	return c.feed.Address()
}

// LatestPrice reads the answer from the feed and decimals from cache.
func (c *CachedDecimals) LatestPrice(ctx context.Context) (*big.Int, uint8, error) {
	return readFeed(ctx, c, "chainlink-cached")
}

// Decimals returns cached decimals, falling back to the feed on a miss.
func (c *CachedDecimals) Decimals(ctx context.Context) (uint8, error) {
	key := decimalsKey(c.feed.Address())

	if cached, found := c.cache.Get(key); found {
		if decimals, ok := cached.(uint8); ok {
			return decimals, nil
		}
		c.logger.Warn("cached-decimals-type-mismatch", zap.String("key", key))
	}

	decimals, err := c.feed.Decimals(ctx)
	if err != nil {
		return 0, err
	}

	c.cache.Set(key, decimals, c.ttl)
	return decimals, nil
}

// LatestAnswer delegates to the wrapped feed.
func (c *CachedDecimals) LatestAnswer(ctx context.Context) (*big.Int, error) {
	return c.feed.LatestAnswer(ctx)
}

func decimalsKey(addr common.Address) string {
	return "decimals:" + addr.Hex()
}
