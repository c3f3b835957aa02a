package factory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/0xF16/price-bets/internal/ledger"
	"github.com/0xF16/price-bets/internal/vault"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// ErrUnknownVault is returned when an address was not created by the factory.
var ErrUnknownVault = errors.New("unknown vault")

// Config holds configuration for the vault factory.
type Config struct {
	// Address is the factory's own account. Template and clone addresses are
	// derived from it the way contract creation addresses are.
	Address common.Address
	Vault   *vault.Config
	Logger  *zap.Logger
}

// Factory deploys one template vault and produces initialized clones of it.
type Factory struct {
	address  common.Address
	template *vault.Vault
	vaultCfg *vault.Config
	logger   *zap.Logger

	mu     sync.RWMutex
	nonce  uint64
	vaults map[common.Address]*vault.Vault
	order  []common.Address
}

// New creates a factory and deploys its template.
func New(cfg *Config) (*Factory, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Vault == nil {
		return nil, errors.New("vault config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Address == (common.Address{}) {
		return nil, errors.New("factory address cannot be zero")
	}

	templateAddr := crypto.CreateAddress(cfg.Address, 0)

	template, err := vault.NewTemplate(templateAddr, cfg.Vault)
	if err != nil {
		return nil, fmt.Errorf("deploy template: %w", err)
	}

	cfg.Logger.Info("factory-deployed",
		zap.String("factory", cfg.Address.Hex()),
		zap.String("template", templateAddr.Hex()))

	return &Factory{
		address:  cfg.Address,
		template: template,
		vaultCfg: cfg.Vault,
		logger:   cfg.Logger,
		nonce:    1,
		vaults:   make(map[common.Address]*vault.Vault),
	}, nil
}

// Address returns the factory account.
func (f *Factory) Address() common.Address {
	return f.address
}

// Template returns the template vault.
func (f *Factory) Template() *vault.Vault {
	return f.template
}

// CreateVault clones the template and initializes the clone. A clone that
// fails to initialize is discarded and its address is reused by the next call.
func (f *Factory) CreateVault(
	ctx context.Context,
	oracleAddr common.Address,
	biddingEnd time.Time,
	wholeRoundEnd time.Time,
) (*vault.Vault, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	addr := crypto.CreateAddress(f.address, f.nonce)

	clone, err := f.template.Clone(addr)
	if err != nil {
		return nil, fmt.Errorf("clone template: %w", err)
	}

	err = clone.Initialize(ctx, oracleAddr, biddingEnd, wholeRoundEnd)
	if err != nil {
		code := vault.Code(err)
		if code == "" {
			code = "internal"
		}
		CreateFailuresTotal.WithLabelValues(code).Inc()
		f.logger.Warn("vault-create-failed",
			zap.String("oracle", oracleAddr.Hex()),
			zap.Error(err))
		return nil, fmt.Errorf("initialize clone: %w", err)
	}

	f.nonce++
	f.vaults[addr] = clone
	f.order = append(f.order, addr)

	VaultsCreatedTotal.Inc()
	f.logger.Info("vault-created",
		zap.String("vault", addr.Hex()),
		zap.String("oracle", oracleAddr.Hex()),
		zap.Time("bidding-end", biddingEnd),
		zap.Time("whole-round-end", wholeRoundEnd))

	event := vault.NewEvent(vault.EventVaultCreated, addr, f.clock().Now())
	event.Actor = f.address
	event.Data = map[string]string{
		"oracle":          oracleAddr.Hex(),
		"template":        f.template.Address().Hex(),
		"bidding_end":     biddingEnd.UTC().Format(time.RFC3339),
		"whole_round_end": wholeRoundEnd.UTC().Format(time.RFC3339),
	}
	vault.Publish(ctx, f.vaultCfg.Events, event, f.logger)

	return clone, nil
}

// Vault looks up a clone created by this factory.
func (f *Factory) Vault(addr common.Address) (*vault.Vault, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	v, ok := f.vaults[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVault, addr.Hex())
	}
	return v, nil
}

// Vaults returns every created clone in creation order.
func (f *Factory) Vaults() []*vault.Vault {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]*vault.Vault, 0, len(f.order))
	for _, addr := range f.order {
		out = append(out, f.vaults[addr])
	}
	return out
}

func (f *Factory) clock() ledger.Clock {
	if f.vaultCfg.Clock == nil {
		return ledger.SystemClock{}
	}
	return f.vaultCfg.Clock
}
