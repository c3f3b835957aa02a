package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var (
	// ErrInsufficientFunds is returned when the sender cannot cover a transfer.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount is returned for nil, zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrTransferRejected is returned when the receiver hook refuses a transfer.
	ErrTransferRejected = errors.New("transfer rejected by receiver")

	// ErrContractAccount is returned when Move would debit a contract account.
	ErrContractAccount = errors.New("contract account cannot attach value")

	// ErrSelfTransfer is returned when sender and receiver are the same account.
	ErrSelfTransfer = errors.New("sender and receiver are the same account")
)

// ReceiveHook runs when value is pushed to an account, before the balances move.
// It is the analogue of a contract fallback: it may call back into whatever sent
// the value. Returning an error rejects the transfer.
type ReceiveHook func(ctx context.Context, from common.Address, amount *big.Int) error

// Ledger is an in-process account ledger holding wei balances.
// Balance moves are atomic; receiver hooks run outside the ledger lock.
type Ledger struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int

	hooksMu   sync.RWMutex
	hooks     map[common.Address]ReceiveHook
	contracts map[common.Address]bool

	logger *zap.Logger
}

// New creates an empty ledger.
func New(logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Ledger{
		balances: make(map[common.Address]*big.Int),
		hooks:     make(map[common.Address]ReceiveHook),
		contracts: make(map[common.Address]bool),
		logger:    logger,
	}
}

// Balance returns a copy of the balance held by addr.
func (l *Ledger) Balance(addr common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[addr]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(bal)
}

// Credit mints amount into addr. Used to fund accounts in paper mode and tests.
func (l *Ledger) Credit(addr common.Address, amount *big.Int) error {
	if !positive(amount) {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	l.add(addr, amount)
	l.mu.Unlock()

	TransfersTotal.WithLabelValues("credit").Inc()
	l.logger.Debug("ledger-credit",
		zap.String("account", addr.Hex()),
		zap.String("amount", amount.String()))

	return nil
}

// Move moves value attached to a call (the msg.value analogue). No receiver
// hook is dispatched, so the caller may hold its own locks while calling Move.
// Contract accounts only pay out through Transfer and can never be debited here.
func (l *Ledger) Move(from common.Address, to common.Address, amount *big.Int) error {
	if !positive(amount) {
		return ErrInvalidAmount
	}

	if l.IsContract(from) {
		TransfersTotal.WithLabelValues("contract").Inc()
		return fmt.Errorf("%w: %s", ErrContractAccount, from.Hex())
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.move(from, to, amount)
	if err != nil {
		TransfersTotal.WithLabelValues(failureLabel(err)).Inc()
		return err
	}

	TransfersTotal.WithLabelValues("moved").Inc()
	return nil
}

// Transfer pushes value to another account. The receiver hook, if any, runs
// first and outside every ledger lock; it may reenter the sender.
func (l *Ledger) Transfer(ctx context.Context, from common.Address, to common.Address, amount *big.Int) error {
	if !positive(amount) {
		return ErrInvalidAmount
	}

	err := ctx.Err()
	if err != nil {
		return fmt.Errorf("transfer: %w", err)
	}

	l.hooksMu.RLock()
	hook := l.hooks[to]
	l.hooksMu.RUnlock()

	if hook != nil {
		hookErr := hook(ctx, from, new(big.Int).Set(amount))
		if hookErr != nil {
			TransfersTotal.WithLabelValues("rejected").Inc()
			l.logger.Warn("ledger-transfer-rejected",
				zap.String("from", from.Hex()),
				zap.String("to", to.Hex()),
				zap.String("amount", amount.String()),
				zap.Error(hookErr))
			return fmt.Errorf("%w: %v", ErrTransferRejected, hookErr)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	err = l.move(from, to, amount)
	if err != nil {
		TransfersTotal.WithLabelValues(failureLabel(err)).Inc()
		return err
	}

	TransfersTotal.WithLabelValues("transferred").Inc()
	l.logger.Debug("ledger-transfer",
		zap.String("from", from.Hex()),
		zap.String("to", to.Hex()),
		zap.String("amount", amount.String()))

	return nil
}

// RegisterContract marks addr as a contract account.
func (l *Ledger) RegisterContract(addr common.Address) {
	l.hooksMu.Lock()
	defer l.hooksMu.Unlock()
	l.contracts[addr] = true
}

// IsContract reports whether addr was registered as a contract account.
func (l *Ledger) IsContract(addr common.Address) bool {
	l.hooksMu.RLock()
	defer l.hooksMu.RUnlock()
	return l.contracts[addr]
}

// SetReceiver installs a receive hook for addr. A nil hook removes it.
func (l *Ledger) SetReceiver(addr common.Address, hook ReceiveHook) {
	l.hooksMu.Lock()
	defer l.hooksMu.Unlock()

	if hook == nil {
		delete(l.hooks, addr)
		return
	}
	l.hooks[addr] = hook
}

// TotalSupply returns the sum of every balance.
func (l *Ledger) TotalSupply() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := new(big.Int)
	for _, bal := range l.balances {
		total.Add(total, bal)
	}
	return total
}

// move must be called with l.mu held.
func (l *Ledger) move(from common.Address, to common.Address, amount *big.Int) error {
	if from == to {
		return fmt.Errorf("%w: %s", ErrSelfTransfer, from.Hex())
	}

	bal, ok := l.balances[from]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientFunds, from.Hex(), l.balanceString(from), amount)
	}

	bal.Sub(bal, amount)
	l.add(to, amount)
	return nil
}

func (l *Ledger) add(addr common.Address, amount *big.Int) {
	bal, ok := l.balances[addr]
	if !ok {
		bal = new(big.Int)
		l.balances[addr] = bal
	}
	bal.Add(bal, amount)
}

func (l *Ledger) balanceString(addr common.Address) string {
	bal, ok := l.balances[addr]
	if !ok {
		return "0"
	}
	return bal.String()
}

func failureLabel(err error) string {
	if errors.Is(err, ErrSelfTransfer) {
		return "self"
	}
	return "insufficient"
}

func positive(amount *big.Int) bool {
	return amount != nil && amount.Sign() > 0
}
