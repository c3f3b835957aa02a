package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/0xF16/price-bets/internal/vault"
)

// FanOut forwards every event to several sinks. A failing sink does not stop
// delivery to the others.
type FanOut struct {
	sinks []Storage
}

// NewFanOut creates a fan-out over sinks.
func NewFanOut(sinks ...Storage) *FanOut {
	return &FanOut{sinks: sinks}
}

// StoreEvent delivers event to every sink and joins their errors.
func (f *FanOut) StoreEvent(ctx context.Context, event *vault.Event) error {
	var errs []error
	for i, sink := range f.sinks {
		err := sink.StoreEvent(ctx, event)
		if err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (f *FanOut) Close() error {
	var errs []error
	for _, sink := range f.sinks {
		err := sink.Close()
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
