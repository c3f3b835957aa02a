package vault

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Initialize binds the oracle and the round windows. It runs once per clone and
// is forbidden on a template. Nothing is stored unless every check passes.
func (v *Vault) Initialize(
	ctx context.Context,
	oracleAddr common.Address,
	biddingEnd time.Time,
	wholeRoundEnd time.Time,
) error {
	err := ctx.Err()
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.template {
		return v.reject("initialize", ErrForbidden)
	}

	if v.phase != PhaseUninitialized {
		return v.reject("initialize", ErrAlreadyInitialized)
	}

	if !biddingEnd.Before(wholeRoundEnd) {
		return v.reject("initialize", ErrInvalidWindow)
	}

	if !biddingEnd.After(v.clock.Now()) {
		return v.reject("initialize", ErrWindowAlreadyPassed)
	}

	if oracleAddr == (common.Address{}) {
		return v.reject("initialize", ErrInvalidOracle)
	}

	v.oracleAddr = oracleAddr
	v.biddingEnd = biddingEnd
	v.wholeRoundEnd = wholeRoundEnd
	v.setPhase(PhaseBidding)

	v.logger.Info("vault-initialized",
		zap.String("oracle", oracleAddr.Hex()),
		zap.Time("bidding-end", biddingEnd),
		zap.Time("whole-round-end", wholeRoundEnd))

	return nil
}

// PlaceBid records bettor's guess and moves stake from the bettor's account
// into the vault. Bids are accepted strictly before the bidding end time.
func (v *Vault) PlaceBid(ctx context.Context, bettor common.Address, guessedPrice int64, stake *big.Int) error {
	err := ctx.Err()
	if err != nil {
		return fmt.Errorf("place bid: %w", err)
	}

	v.mu.Lock()

	err = v.checkBidLocked(bettor, stake)
	if err != nil {
		v.mu.Unlock()
		return v.reject("place_bid", err)
	}

	// Move runs no receiver hook, so holding mu here cannot reenter the vault.
	err = v.ledger.Move(bettor, v.address, stake)
	if err != nil {
		v.mu.Unlock()
		RejectionsTotal.WithLabelValues("place_bid", "stake_transfer").Inc()
		return fmt.Errorf("transfer stake: %w", err)
	}

	now := v.clock.Now()
	amount := new(big.Int).Set(stake)
	v.bets[bettor] = &Bet{
		Bettor:       bettor,
		GuessedPrice: guessedPrice,
		StakedAmount: amount,
		Active:       true,
		PlacedAt:     now,
	}
	v.order = append(v.order, bettor)
	v.pool.Add(v.pool, amount)
	pool := new(big.Int).Set(v.pool)

	v.mu.Unlock()

	BidsPlacedTotal.Inc()
	StakeVolumeEther.Add(weiToEther(amount))

	v.logger.Info("bid-placed",
		zap.String("bettor", bettor.Hex()),
		zap.Int64("guessed-price", guessedPrice),
		zap.String("stake", amount.String()),
		zap.String("pool", pool.String()))

	event := NewEvent(EventBidPlaced, v.address, now)
	event.Actor = bettor
	event.Amount = new(big.Int).Set(amount)
	event.Price = guessedPrice
	event.Data = map[string]string{"pool": pool.String()}
	v.publish(ctx, event)

	return nil
}

// checkBidLocked must be called with v.mu held.
func (v *Vault) checkBidLocked(bettor common.Address, stake *big.Int) error {
	switch v.phase {
	case PhaseUninitialized:
		return ErrNotInitialized
	case PhaseBidding:
	default:
		return ErrBiddingClosed
	}

	if !v.clock.Now().Before(v.biddingEnd) {
		return ErrBiddingClosed
	}

	// Vault accounts hold escrow and must never fund a bet.
	if bettor == (common.Address{}) || bettor == v.address || v.ledger.IsContract(bettor) {
		return ErrInvalidBettor
	}

	if _, exists := v.bets[bettor]; exists {
		return ErrDuplicateBid
	}

	if stake == nil || stake.Sign() <= 0 {
		return ErrInvalidStake
	}

	return nil
}

// weiToEther converts wei to a float ether amount for metrics.
func weiToEther(wei *big.Int) float64 {
	ether := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e18))
	f, _ := ether.Float64()
	return f
}

func formatDistance(d uint64) string {
	return strconv.FormatUint(d, 10)
}
