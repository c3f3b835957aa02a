package vault

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventKind names an audit event.
type EventKind string

const (
	EventVaultCreated    EventKind = "vault_created"
	EventBidPlaced       EventKind = "bid_placed"
	EventPriceAssessed   EventKind = "price_assessed"
	EventWinnersSelected EventKind = "winners_selected"
	EventPayout          EventKind = "payout"
	EventPayoutDeferred  EventKind = "payout_deferred"
	EventWithdrawal      EventKind = "withdrawal"
)

// Event is an audit record of a committed vault operation.
type Event struct {
	ID     uuid.UUID         `json:"id"`
	Kind   EventKind         `json:"kind"`
	Vault  common.Address    `json:"vault"`
	Actor  common.Address    `json:"actor"`
	Amount *big.Int          `json:"amount,omitempty"`
	Price  int64             `json:"price"`
	Data   map[string]string `json:"data,omitempty"`
	At     time.Time         `json:"at"`
}

// NewEvent creates an event with a fresh ID.
func NewEvent(kind EventKind, vaultAddr common.Address, at time.Time) *Event {
	return &Event{
		ID:    uuid.New(),
		Kind:  kind,
		Vault: vaultAddr,
		At:    at.UTC(),
	}
}

// EventSink receives audit events. Failures are logged and never undo the operation.
type EventSink interface {
	StoreEvent(ctx context.Context, event *Event) error
}

// Publish delivers event to sink, logging and counting failures.
func Publish(ctx context.Context, sink EventSink, event *Event, logger *zap.Logger) {
	if sink == nil {
		return
	}

	err := sink.StoreEvent(ctx, event)
	if err != nil {
		EventSinkErrorsTotal.WithLabelValues(string(event.Kind)).Inc()
		logger.Warn("event-sink-failed",
			zap.String("kind", string(event.Kind)),
			zap.String("event-id", event.ID.String()),
			zap.String("vault", event.Vault.Hex()),
			zap.Error(err))
	}
}
