package oracle

import (
	"fmt"
	"sync"
	"time"

	"github.com/0xF16/price-bets/pkg/cache"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DialFunc builds an oracle for an address the registry has not seen yet.
type DialFunc func(addr common.Address) (PriceOracle, error)

// Registry resolves oracle addresses to PriceOracle instances.
// Dialed oracles are remembered so every later lookup returns the same instance.
type Registry struct {
	mu      sync.RWMutex
	oracles map[common.Address]PriceOracle
	dial    DialFunc
}

// NewRegistry creates a registry. dial may be nil, in which case only
// registered addresses resolve.
func NewRegistry(dial DialFunc) *Registry {
	return &Registry{
		oracles: make(map[common.Address]PriceOracle),
		dial:    dial,
	}
}

// Register binds addr to o, replacing any previous binding.
func (r *Registry) Register(addr common.Address, o PriceOracle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.oracles[addr] = o
}

// Oracle resolves addr.
func (r *Registry) Oracle(addr common.Address) (PriceOracle, error) {
	r.mu.RLock()
	o, ok := r.oracles[addr]
	r.mu.RUnlock()
	if ok {
		return o, nil
	}

	if r.dial == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOracle, addr.Hex())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if o, ok = r.oracles[addr]; ok {
		return o, nil
	}

	o, err := r.dial(addr)
	if err != nil {
		return nil, fmt.Errorf("dial oracle %s: %w", addr.Hex(), err)
	}

	r.oracles[addr] = o
	return o, nil
}

// ChainlinkDialer returns a DialFunc producing cached Chainlink adapters that
// share one caller, one rate limiter and one decimals cache.
func ChainlinkDialer(
	caller ContractCaller,
	decimalsCache cache.Cache,
	decimalsTTL time.Duration,
	limiter *rate.Limiter,
	logger *zap.Logger,
) DialFunc {
	return func(addr common.Address) (PriceOracle, error) {
		feed, err := NewChainlink(&ChainlinkConfig{
			Address: addr,
			Caller:  caller,
			Limiter: limiter,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create chainlink feed: %w", err)
		}

		if decimalsCache == nil {
			return feed, nil
		}

		cached, err := NewCachedDecimals(&CachedDecimalsConfig{
			Feed:   feed,
			Cache:  decimalsCache,
			TTL:    decimalsTTL,
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("wrap chainlink feed: %w", err)
		}

		logger.Info("chainlink-feed-dialed", zap.String("feed", addr.Hex()))
		return cached, nil
	}
}
