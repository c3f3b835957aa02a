package oracle

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
)

// Static is a settable in-memory price source.
type Static struct {
	mu       sync.RWMutex
	value    *big.Int
	decimals uint8
	err      error

	calls atomic.Int64
}

// NewStatic creates a Static oracle answering value with the given decimals.
func NewStatic(value *big.Int, decimals uint8) *Static {
	s := &Static{decimals: decimals}
	if value != nil {
		s.value = new(big.Int).Set(value)
	}
	return s
}

// NewStaticPrice creates a Static oracle answering a whole price with zero decimals.
func NewStaticPrice(price int64) *Static {
	return NewStatic(big.NewInt(price), 0)
}

// LatestPrice returns the configured answer.
func (s *Static) LatestPrice(ctx context.Context) (*big.Int, uint8, error) {
	s.calls.Add(1)
	OracleReadsTotal.WithLabelValues("static", "attempt").Inc()

	err := ctx.Err()
	if err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.err != nil {
		OracleReadsTotal.WithLabelValues("static", "error").Inc()
		return nil, 0, s.err
	}

	var value *big.Int
	if s.value != nil {
		value = new(big.Int).Set(s.value)
	}

	OracleReadsTotal.WithLabelValues("static", "success").Inc()
	return value, s.decimals, nil
}

// Set changes the answer returned by later reads.
func (s *Static) Set(value *big.Int, decimals uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.value = nil
	if value != nil {
		s.value = new(big.Int).Set(value)
	}
	s.decimals = decimals
}

// SetError makes later reads fail with err. A nil err clears it.
func (s *Static) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Calls reports how many times LatestPrice was invoked.
func (s *Static) Calls() int64 {
	return s.calls.Load()
}
