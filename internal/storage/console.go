package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/0xF16/price-bets/internal/vault"
	"go.uber.org/zap"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// ConsoleStorage implements Storage by pretty-printing to console.
type ConsoleStorage struct {
	out    io.Writer
	logger *zap.Logger
}

// NewConsoleStorage creates a new console storage writing to stdout.
func NewConsoleStorage(logger *zap.Logger) *ConsoleStorage {
	logger.Info("console-storage-initialized")
	return &ConsoleStorage{
		out:    os.Stdout,
		logger: logger,
	}
}

// StoreEvent pretty-prints an audit event.
func (c *ConsoleStorage) StoreEvent(ctx context.Context, event *vault.Event) error {
	var b strings.Builder

	fmt.Fprintln(&b, "\n"+rule)
	fmt.Fprintf(&b, "%s %s\n", eventIcon(event.Kind), strings.ToUpper(strings.ReplaceAll(string(event.Kind), "_", " ")))
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "ID:     %s\n", event.ID.String()[:8])
	fmt.Fprintf(&b, "Vault:  %s\n", event.Vault.Hex())
	fmt.Fprintf(&b, "Actor:  %s\n", event.Actor.Hex())
	fmt.Fprintf(&b, "Time:   %s\n", event.At.Format("2006-01-02 15:04:05"))

	if event.Amount != nil {
		fmt.Fprintf(&b, "Amount: %s wei\n", event.Amount.String())
	}

	if event.Kind == vault.EventBidPlaced || event.Kind == vault.EventPriceAssessed || event.Kind == vault.EventWinnersSelected {
		fmt.Fprintf(&b, "Price:  %d\n", event.Price)
	}

	if len(event.Data) > 0 {
		keys := make([]string, 0, len(event.Data))
		for k := range event.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			fmt.Fprintf(&b, "  %-16s %s\n", k+":", event.Data[k])
		}
	}
	fmt.Fprintln(&b, rule)

	_, err := io.WriteString(c.out, b.String())
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	return nil
}

// Close is a no-op for console storage.
func (c *ConsoleStorage) Close() error {
	c.logger.Info("closing-console-storage")
	return nil
}

func eventIcon(kind vault.EventKind) string {
	switch kind {
	case vault.EventVaultCreated:
		return "🏦"
	case vault.EventBidPlaced:
		return "🎯"
	case vault.EventPriceAssessed:
		return "📊"
	case vault.EventWinnersSelected:
		return "🏆"
	case vault.EventPayout, vault.EventWithdrawal:
		return "💰"
	case vault.EventPayoutDeferred:
		return "⏸️"
	default:
		return "•"
	}
}
