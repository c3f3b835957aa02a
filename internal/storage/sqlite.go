package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/0xF16/price-bets/internal/vault"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS vault_events (
	id          TEXT PRIMARY KEY,
	kind        TEXT     NOT NULL,
	vault       TEXT     NOT NULL,
	actor       TEXT     NOT NULL,
	amount      TEXT,
	price       INTEGER  NOT NULL DEFAULT 0,
	data        BLOB     NOT NULL,
	occurred_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_vault_events_vault ON vault_events(vault, occurred_at);
`

// SQLiteStorage implements Storage using SQLite (pure Go, no cgo).
type SQLiteStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// SQLiteConfig holds SQLite configuration.
type SQLiteConfig struct {
	Path   string
	Logger *zap.Logger
}

// NewSQLiteStorage opens (or creates) the database and applies the schema.
func NewSQLiteStorage(ctx context.Context, cfg *SQLiteConfig) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", cfg.Path, err)
	}
	db.SetMaxOpenConns(1) // single writer
	db.SetMaxIdleConns(1)

	s := &SQLiteStorage{
		db:     db,
		logger: cfg.Logger,
	}

	err = s.Migrate(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	cfg.Logger.Info("sqlite-storage-opened", zap.String("path", cfg.Path))
	return s, nil
}

// Migrate creates the events table if it does not exist.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// StoreEvent stores an audit event in SQLite.
func (s *SQLiteStorage) StoreEvent(ctx context.Context, event *vault.Event) error {
	row, err := toRow(event)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO vault_events (id, kind, vault, actor, amount, price, data, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.id,
		row.kind,
		row.vault,
		row.actor,
		row.amount,
		row.price,
		row.data,
		row.occurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	s.logger.Debug("event-stored",
		zap.String("event-id", row.id),
		zap.String("kind", row.kind),
		zap.String("vault", row.vault))

	return nil
}

// ListEvents returns up to limit events of a vault, oldest first.
func (s *SQLiteStorage) ListEvents(ctx context.Context, vaultAddr common.Address, limit int) ([]*vault.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, vault, actor, amount, price, data, occurred_at
		 FROM vault_events
		 WHERE vault = ?
		 ORDER BY occurred_at ASC
		 LIMIT ?`,
		vaultAddr.Hex(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}

	return scanEvents(rows)
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	s.logger.Info("closing-sqlite-storage")
	return s.db.Close()
}
