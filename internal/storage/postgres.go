package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/0xF16/price-bets/internal/vault"
	"github.com/ethereum/go-ethereum/common"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS vault_events (
	id          UUID PRIMARY KEY,
	kind        TEXT NOT NULL,
	vault       TEXT NOT NULL,
	actor       TEXT NOT NULL,
	amount      NUMERIC(78, 0),
	price       BIGINT NOT NULL DEFAULT 0,
	data        JSONB NOT NULL DEFAULT '{}',
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_vault_events_vault ON vault_events (vault, occurred_at);
`

// PostgresStorage implements Storage using PostgreSQL.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresStorage connects to PostgreSQL and applies the schema.
func NewPostgresStorage(ctx context.Context, cfg *PostgresConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	p := &PostgresStorage{
		db:     db,
		logger: cfg.Logger,
	}

	err = p.Migrate(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return p, nil
}

// Migrate creates the events table if it does not exist.
func (p *PostgresStorage) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, postgresSchema)
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// StoreEvent stores an audit event in PostgreSQL.
func (p *PostgresStorage) StoreEvent(ctx context.Context, event *vault.Event) error {
	row, err := toRow(event)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO vault_events (
			id, kind, vault, actor, amount, price, data, occurred_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	_, err = p.db.ExecContext(ctx, query,
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

	p.logger.Debug("event-stored",
		zap.String("event-id", row.id),
		zap.String("kind", row.kind),
		zap.String("vault", row.vault))

	return nil
}

// ListEvents returns up to limit events of a vault, oldest first.
func (p *PostgresStorage) ListEvents(ctx context.Context, vaultAddr common.Address, limit int) ([]*vault.Event, error) {
	query := `
		SELECT id, kind, vault, actor, amount::TEXT, price, data, occurred_at
		FROM vault_events
		WHERE vault = $1
		ORDER BY occurred_at ASC
		LIMIT $2
	`

	rows, err := p.db.QueryContext(ctx, query, vaultAddr.Hex(), limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}

	return scanEvents(rows)
}

// Close closes the database connection.
func (p *PostgresStorage) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}
