package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/0xF16/price-bets/internal/vault"
	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
)

// Broadcaster pushes raw messages to live subscribers.
// websocket.Hub implements this interface.
type Broadcaster interface {
	Broadcast(msg []byte) error
	Close() error
}

// EventView is the wire form of an event. Amounts are decimal strings so
// clients never lose wei precision.
type EventView struct {
	ID     string            `json:"id"`
	Kind   string            `json:"kind"`
	Vault  string            `json:"vault"`
	Actor  string            `json:"actor,omitempty"`
	Amount string            `json:"amount,omitempty"`
	Price  int64             `json:"price,omitempty"`
	Data   map[string]string `json:"data,omitempty"`
	At     time.Time         `json:"at"`
}

// NewEventView converts an event to its wire form.
func NewEventView(event *vault.Event) EventView {
	view := EventView{
		ID:    event.ID.String(),
		Kind:  string(event.Kind),
		Vault: event.Vault.Hex(),
		Price: event.Price,
		Data:  event.Data,
		At:    event.At,
	}

	if event.Actor != (common.Address{}) {
		view.Actor = event.Actor.Hex()
	}

	if event.Amount != nil {
		view.Amount = event.Amount.String()
	}

	return view
}

// StreamStorage publishes events to live stream subscribers.
type StreamStorage struct {
	out Broadcaster
}

// NewStreamStorage creates a sink that encodes events onto out.
func NewStreamStorage(out Broadcaster) *StreamStorage {
	return &StreamStorage{out: out}
}

// StoreEvent encodes event and broadcasts it.
func (s *StreamStorage) StoreEvent(ctx context.Context, event *vault.Event) error {
	msg, err := json.Marshal(NewEventView(event))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = s.out.Broadcast(msg)
	if err != nil {
		return fmt.Errorf("broadcast event: %w", err)
	}

	return nil
}

// Close closes the underlying broadcaster.
func (s *StreamStorage) Close() error {
	return s.out.Close()
}
