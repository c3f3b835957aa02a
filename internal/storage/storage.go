package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/0xF16/price-bets/internal/vault"
	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Storage is the interface for persisting vault audit events.
type Storage interface {
	// StoreEvent stores one audit event.
	StoreEvent(ctx context.Context, event *vault.Event) error

	// Close closes the storage connection.
	Close() error
}

// EventReader lists stored events for a vault, oldest first.
type EventReader interface {
	ListEvents(ctx context.Context, vaultAddr common.Address, limit int) ([]*vault.Event, error)
}

// eventRow is the column form of an event shared by the SQL backends.
type eventRow struct {
	id         string
	kind       string
	vault      string
	actor      string
	amount     sql.NullString
	price      int64
	data       []byte
	occurredAt time.Time
}

func toRow(event *vault.Event) (eventRow, error) {
	row := eventRow{
		id:         event.ID.String(),
		kind:       string(event.Kind),
		vault:      event.Vault.Hex(),
		actor:      event.Actor.Hex(),
		price:      event.Price,
		occurredAt: event.At.UTC(),
	}

	if event.Amount != nil {
		row.amount = sql.NullString{String: event.Amount.String(), Valid: true}
	}

	data := event.Data
	if data == nil {
		data = map[string]string{}
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return eventRow{}, fmt.Errorf("encode event data: %w", err)
	}
	row.data = encoded

	return row, nil
}

func (r eventRow) toEvent() (*vault.Event, error) {
	id, err := uuid.Parse(r.id)
	if err != nil {
		return nil, fmt.Errorf("parse event id: %w", err)
	}

	event := &vault.Event{
		ID:    id,
		Kind:  vault.EventKind(r.kind),
		Vault: common.HexToAddress(r.vault),
		Actor: common.HexToAddress(r.actor),
		Price: r.price,
		At:    r.occurredAt.UTC(),
	}

	if r.amount.Valid {
		amount, ok := new(big.Int).SetString(r.amount.String, 10)
		if !ok {
			return nil, fmt.Errorf("parse event amount %q", r.amount.String)
		}
		event.Amount = amount
	}

	if len(r.data) > 0 {
		err = json.Unmarshal(r.data, &event.Data)
		if err != nil {
			return nil, fmt.Errorf("decode event data: %w", err)
		}
		if len(event.Data) == 0 {
			event.Data = nil
		}
	}

	return event, nil
}

func scanEvents(rows *sql.Rows) (events []*vault.Event, err error) {
	defer rows.Close()

	for rows.Next() {
		var r eventRow
		err = rows.Scan(&r.id, &r.kind, &r.vault, &r.actor, &r.amount, &r.price, &r.data, &r.occurredAt)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		event, convErr := r.toEvent()
		if convErr != nil {
			return nil, convErr
		}
		events = append(events, event)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}
