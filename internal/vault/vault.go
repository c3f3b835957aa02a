package vault

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/0xF16/price-bets/internal/ledger"
	"github.com/0xF16/price-bets/internal/oracle"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Config holds the dependencies shared by a template and all of its clones.
type Config struct {
	Ledger  *ledger.Ledger
	Clock   ledger.Clock
	Oracles oracle.Resolver
	Events  EventSink
	Logger  *zap.Logger
}

// logic is the immutable part of a vault. Clones share it by pointer.
type logic struct {
	ledger  *ledger.Ledger
	clock   ledger.Clock
	oracles oracle.Resolver
	events  EventSink
	logger  *zap.Logger
}

// Bet is a single participant's stake on a price guess.
type Bet struct {
	Bettor       common.Address
	GuessedPrice int64
	StakedAmount *big.Int
	Active       bool
	PlacedAt     time.Time
}

// Vault is one price-prediction escrow. All mutable state lives here and is
// guarded by mu; logic is shared and read-only.
type Vault struct {
	*logic

	address  common.Address
	template bool
	logger   *zap.Logger

	mu              sync.Mutex
	phase           Phase
	oracleAddr      common.Address
	biddingEnd      time.Time
	wholeRoundEnd   time.Time
	assessedPrice   int64
	oracleDecimals  uint8
	bets            map[common.Address]*Bet
	order           []common.Address
	pool            *big.Int
	winnersSelected bool
	winningDistance uint64
	winners         []common.Address
	unclaimed       map[common.Address]*big.Int
}

// NewTemplate creates the shared template vault. A template can never be
// initialized and only serves as the source of clones.
func NewTemplate(addr common.Address, cfg *Config) (*Vault, error) {
	l, err := newLogic(cfg)
	if err != nil {
		return nil, err
	}

	v := newVault(l, addr)
	v.template = true

	l.logger.Info("vault-template-deployed", zap.String("template", addr.Hex()))
	return v, nil
}

// Deploy creates and initializes a standalone vault without a factory.
func Deploy(
	ctx context.Context,
	addr common.Address,
	cfg *Config,
	oracleAddr common.Address,
	biddingEnd time.Time,
	wholeRoundEnd time.Time,
) (*Vault, error) {
	l, err := newLogic(cfg)
	if err != nil {
		return nil, err
	}

	v := newVault(l, addr)

	err = v.Initialize(ctx, oracleAddr, biddingEnd, wholeRoundEnd)
	if err != nil {
		return nil, err
	}

	event := NewEvent(EventVaultCreated, addr, l.clock.Now())
	event.Actor = oracleAddr
	event.Data = map[string]string{
		"oracle":          oracleAddr.Hex(),
		"bidding_end":     biddingEnd.UTC().Format(time.RFC3339),
		"whole_round_end": wholeRoundEnd.UTC().Format(time.RFC3339),
	}
	Publish(ctx, l.events, event, l.logger)

	return v, nil
}

// Clone allocates a fresh, uninitialized vault at addr sharing the template's logic.
func (v *Vault) Clone(addr common.Address) (*Vault, error) {
	if !v.template {
		return nil, fmt.Errorf("clone %s: %w", v.address.Hex(), ErrForbidden)
	}

	return newVault(v.logic, addr), nil
}

func newLogic(cfg *Config) (*logic, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Ledger == nil {
		return nil, errors.New("ledger cannot be nil")
	}

	if cfg.Oracles == nil {
		return nil, errors.New("oracle resolver cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = ledger.SystemClock{}
	}

	return &logic{
		ledger:  cfg.Ledger,
		clock:   clock,
		oracles: cfg.Oracles,
		events:  cfg.Events,
		logger:  cfg.Logger,
	}, nil
}

func newVault(l *logic, addr common.Address) *Vault {
	l.ledger.RegisterContract(addr)

	return &Vault{
		logic:     l,
		address:   addr,
		logger:    l.logger.With(zap.String("vault", addr.Hex())),
		phase:     PhaseUninitialized,
		bets:      make(map[common.Address]*Bet),
		pool:      new(big.Int),
		unclaimed: make(map[common.Address]*big.Int),
	}
}

// Address returns the vault's ledger account.
func (v *Vault) Address() common.Address {
	return v.address
}

// IsTemplate reports whether v is a factory template.
func (v *Vault) IsTemplate() bool {
	return v.template
}

// Phase returns the current lifecycle phase.
func (v *Vault) Phase() Phase {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.phase
}

// OracleAddress returns the oracle bound at initialization.
func (v *Vault) OracleAddress() common.Address {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.oracleAddr
}

// BiddingEndTime returns the end of the bidding window.
func (v *Vault) BiddingEndTime() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.biddingEnd
}

// WholeRoundEndTime returns the end of the round.
func (v *Vault) WholeRoundEndTime() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.wholeRoundEnd
}

// Bet returns a copy of bettor's bet. The zero Bet (Active false) means no bet.
func (v *Vault) Bet(bettor common.Address) Bet {
	v.mu.Lock()
	defer v.mu.Unlock()

	b, ok := v.bets[bettor]
	if !ok {
		return Bet{Bettor: bettor, StakedAmount: new(big.Int)}
	}
	return copyBet(b)
}

// Bets returns copies of all bets in placement order.
func (v *Vault) Bets() []Bet {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]Bet, 0, len(v.order))
	for _, addr := range v.order {
		out = append(out, copyBet(v.bets[addr]))
	}
	return out
}

// BetCount returns the number of accepted bets.
func (v *Vault) BetCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.order)
}

// AssessedPrice returns the observed price and whether it has been set.
func (v *Vault) AssessedPrice() (int64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.assessedPrice, v.phase >= PhaseAssessed
}

// WinnersCount returns the number of winners, zero until selected.
func (v *Vault) WinnersCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.winners)
}

// Winners returns the winners in bid order.
func (v *Vault) Winners() []common.Address {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]common.Address(nil), v.winners...)
}

// Pool returns the undistributed stake total.
func (v *Vault) Pool() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.pool)
}

// Unclaimed returns the payout parked for bettor after a rejected transfer.
func (v *Vault) Unclaimed(bettor common.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()

	amount, ok := v.unclaimed[bettor]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(amount)
}

// Balance returns the vault account's ledger balance.
func (v *Vault) Balance() *big.Int {
	return v.ledger.Balance(v.address)
}

func copyBet(b *Bet) Bet {
	c := *b
	c.StakedAmount = new(big.Int).Set(b.StakedAmount)
	return c
}

// setPhase must be called with v.mu held.
func (v *Vault) setPhase(next Phase) {
	if v.phase != PhaseUninitialized {
		VaultsByPhase.WithLabelValues(v.phase.String()).Dec()
	}
	VaultsByPhase.WithLabelValues(next.String()).Inc()
	v.phase = next
}

func (v *Vault) reject(operation string, err error) error {
	RejectionsTotal.WithLabelValues(operation, rejectionCode(err)).Inc()
	v.logger.Debug("vault-operation-rejected",
		zap.String("operation", operation),
		zap.Error(err))
	return err
}

func rejectionCode(err error) string {
	code := Code(err)
	if code == "" {
		return "internal"
	}
	return code
}

func (v *Vault) publish(ctx context.Context, event *Event) {
	Publish(ctx, v.events, event, v.logger)
}
