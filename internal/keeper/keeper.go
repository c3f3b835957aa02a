package keeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0xF16/price-bets/internal/ledger"
	"github.com/0xF16/price-bets/internal/vault"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// VaultSource lists the vaults the keeper watches.
// factory.Factory implements this interface.
type VaultSource interface {
	Vaults() []*vault.Vault
}

// Config holds keeper configuration.
type Config struct {
	Source      VaultSource
	Clock       ledger.Clock
	Interval    time.Duration
	Concurrency int
	Logger      *zap.Logger
}

// SweepResult summarizes a single pass over the registry.
type SweepResult struct {
	Due     int
	Closed  int
	Failed  int
	Empty   int
	Overdue int
}

// Status holds the keeper state for health checks and debugging.
type Status struct {
	LastSweep  time.Time
	LastResult SweepResult
	Sweeps     int64
}

// Keeper periodically closes vaults whose bidding window has passed.
type Keeper struct {
	source      VaultSource
	clock       ledger.Clock
	interval    time.Duration
	concurrency int
	logger      *zap.Logger

	sweeps atomic.Int64

	// Protected by mutex
	mu         sync.RWMutex
	empty      map[common.Address]bool
	lastSweep  time.Time
	lastResult SweepResult
}

// New creates a new keeper.
func New(cfg *Config) (*Keeper, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Source == nil {
		return nil, errors.New("vault source cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Interval <= 0 {
		return nil, errors.New("interval must be positive")
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	clock := cfg.Clock
	if clock == nil {
		clock = ledger.SystemClock{}
	}

	return &Keeper{
		source:      cfg.Source,
		clock:       clock,
		interval:    cfg.Interval,
		concurrency: concurrency,
		logger:      cfg.Logger,
		empty:       make(map[common.Address]bool),
	}, nil
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
func (k *Keeper) Run(ctx context.Context) error {
	k.logger.Info("keeper-started",
		zap.Duration("interval", k.interval),
		zap.Int("concurrency", k.concurrency))

	_, err := k.Sweep(ctx)
	if err != nil && ctx.Err() == nil {
		k.logger.Error("initial-sweep-failed", zap.Error(err))
	}

	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			k.logger.Info("keeper-stopped")
			return ctx.Err()
		case <-ticker.C:
			_, err := k.Sweep(ctx)
			if err != nil && ctx.Err() == nil {
				// Log error but keep sweeping
				k.logger.Error("sweep-error", zap.Error(err))
			}
		}
	}
}

// Sweep closes every due vault once. Failures on one vault never stop the
// others; only cancellation of ctx aborts the pass.
func (k *Keeper) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	defer func() {
		SweepDuration.Observe(time.Since(start).Seconds())
	}()

	now := k.clock.Now()

	var result SweepResult
	var due []*vault.Vault

	for _, v := range k.source.Vaults() {
		if k.isEmpty(v.Address()) {
			result.Empty++
			continue
		}

		phase := v.Phase()
		if phase == vault.PhaseResolved || phase == vault.PhaseUninitialized {
			continue
		}

		if !now.Before(v.WholeRoundEndTime()) {
			result.Overdue++
			k.logger.Warn("vault-overdue",
				zap.String("vault", v.Address().Hex()),
				zap.Stringer("phase", phase),
				zap.Time("whole-round-end", v.WholeRoundEndTime()))
		}

		if phase == vault.PhaseAssessing || now.Before(v.BiddingEndTime()) {
			continue
		}

		due = append(due, v)
	}

	result.Due = len(due)

	var closed, failed, empty atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(k.concurrency)

	for _, v := range due {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			err := v.Close(gctx)
			switch {
			case err == nil:
				closed.Add(1)
				VaultsClosedTotal.WithLabelValues("closed").Inc()
			case errors.Is(err, vault.ErrNoParticipants):
				empty.Add(1)
				k.markEmpty(v.Address())
				VaultsClosedTotal.WithLabelValues("empty").Inc()
				k.logger.Info("vault-has-no-participants",
					zap.String("vault", v.Address().Hex()))
			case errors.Is(err, vault.ErrAlreadyResolved), errors.Is(err, vault.ErrAssessmentInProgress):
				// Closed or being closed by someone else.
			default:
				failed.Add(1)
				VaultsClosedTotal.WithLabelValues("failed").Inc()
				k.logger.Warn("vault-close-failed",
					zap.String("vault", v.Address().Hex()),
					zap.Error(err))
			}

			return nil
		})
	}

	err := g.Wait()

	result.Closed = int(closed.Load())
	result.Failed = int(failed.Load())
	result.Empty += int(empty.Load())

	OverdueVaults.Set(float64(result.Overdue))
	SweepsTotal.Inc()
	k.sweeps.Add(1)

	k.mu.Lock()
	k.lastSweep = now
	k.lastResult = result
	k.mu.Unlock()

	k.logger.Debug("sweep-complete",
		zap.Int("due", result.Due),
		zap.Int("closed", result.Closed),
		zap.Int("failed", result.Failed),
		zap.Int("empty", result.Empty),
		zap.Int("overdue", result.Overdue),
		zap.Duration("duration", time.Since(start)))

	if err != nil {
		return result, fmt.Errorf("sweep vaults: %w", err)
	}

	return result, nil
}

// Status returns the outcome of the most recent sweep.
func (k *Keeper) Status() Status {
	k.mu.RLock()
	defer k.mu.RUnlock()

	return Status{
		LastSweep:  k.lastSweep,
		LastResult: k.lastResult,
		Sweeps:     k.sweeps.Load(),
	}
}

// Check reports an error when no sweep completed within three intervals.
// It is registered as a readiness check.
func (k *Keeper) Check() error {
	k.mu.RLock()
	last := k.lastSweep
	k.mu.RUnlock()

	if last.IsZero() {
		return errors.New("keeper has not swept yet")
	}

	if k.clock.Now().Sub(last) > 3*k.interval {
		return fmt.Errorf("last sweep at %s", last.UTC().Format(time.RFC3339))
	}

	return nil
}

func (k *Keeper) isEmpty(addr common.Address) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.empty[addr]
}

func (k *Keeper) markEmpty(addr common.Address) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.empty[addr] = true
}
