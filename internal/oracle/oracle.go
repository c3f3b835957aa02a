package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MaxDecimals is the largest feed precision accepted by Normalize.
const MaxDecimals = 36

var (
	// ErrInvalidPrice is returned when a feed answer cannot be represented as a whole price.
	ErrInvalidPrice = errors.New("invalid oracle price")

	// ErrStalePrice is returned when a feed round was never completed.
	ErrStalePrice = errors.New("stale oracle round")

	// ErrUnknownOracle is returned by a Registry that cannot resolve an address.
	ErrUnknownOracle = errors.New("unknown oracle")
)

// PriceOracle reports the latest observed price as a fixed-point value and its decimals.
type PriceOracle interface {
	LatestPrice(ctx context.Context) (value *big.Int, decimals uint8, err error)
}

// Resolver maps an oracle address to a callable PriceOracle.
type Resolver interface {
	Oracle(addr common.Address) (PriceOracle, error)
}

// Normalize converts a fixed-point feed answer into a whole price by
// truncating value / 10^decimals toward zero.
func Normalize(value *big.Int, decimals uint8) (price int64, err error) {
	if value == nil {
		return 0, fmt.Errorf("%w: nil value", ErrInvalidPrice)
	}

	if decimals > MaxDecimals {
		return 0, fmt.Errorf("%w: %d decimals exceeds %d", ErrInvalidPrice, decimals, MaxDecimals)
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole := new(big.Int).Quo(value, scale)

	if !whole.IsInt64() {
		return 0, fmt.Errorf("%w: %s does not fit int64", ErrInvalidPrice, whole)
	}

	return whole.Int64(), nil
}
