package vault

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/0xF16/price-bets/internal/oracle"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type payout struct {
	winner common.Address
	amount *big.Int
}

// AssessPrice reads the oracle once, after bidding has ended, and stores the
// normalized price. The vault is marked Assessing while the read is in flight
// and rolls back to Bidding if the read fails.
func (v *Vault) AssessPrice(ctx context.Context) error {
	v.mu.Lock()

	err := v.checkAssessLocked()
	if err != nil {
		v.mu.Unlock()
		return v.reject("assess_price", err)
	}

	oracleAddr := v.oracleAddr
	v.setPhase(PhaseAssessing)
	v.mu.Unlock()

	price, decimals, err := v.readPrice(ctx, oracleAddr)

	v.mu.Lock()
	if err != nil {
		v.setPhase(PhaseBidding)
		v.mu.Unlock()

		AssessmentsTotal.WithLabelValues("error").Inc()
		v.logger.Warn("price-assessment-failed",
			zap.String("oracle", oracleAddr.Hex()),
			zap.Error(err))
		return err
	}

	v.assessedPrice = price
	v.oracleDecimals = decimals
	v.setPhase(PhaseAssessed)
	v.mu.Unlock()

	AssessmentsTotal.WithLabelValues("success").Inc()
	v.logger.Info("price-assessed",
		zap.String("oracle", oracleAddr.Hex()),
		zap.Int64("price", price),
		zap.Uint8("decimals", decimals))

	event := NewEvent(EventPriceAssessed, v.address, v.clock.Now())
	event.Actor = oracleAddr
	event.Price = price
	event.Data = map[string]string{"decimals": strconv.Itoa(int(decimals))}
	v.publish(ctx, event)

	return nil
}

// checkAssessLocked must be called with v.mu held.
func (v *Vault) checkAssessLocked() error {
	if v.phase == PhaseUninitialized {
		return ErrNotInitialized
	}

	if v.clock.Now().Before(v.biddingEnd) {
		return ErrTooEarly
	}

	switch v.phase {
	case PhaseBidding:
		return nil
	case PhaseAssessing:
		return ErrAssessmentInProgress
	case PhaseAssessed:
		return ErrAlreadyAssessed
	default:
		return ErrAlreadyResolved
	}
}

func (v *Vault) readPrice(ctx context.Context, oracleAddr common.Address) (price int64, decimals uint8, err error) {
	feed, err := v.oracles.Oracle(oracleAddr)
	if err != nil {
		return 0, 0, fmt.Errorf("resolve oracle: %w", err)
	}

	value, decimals, err := feed.LatestPrice(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("read oracle: %w", err)
	}

	price, err = oracle.Normalize(value, decimals)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrInvalidOraclePrice, err)
	}

	return price, decimals, nil
}

// SelectWinners computes the bets closest to the assessed price. It is
// idempotent: once computed, later calls return the same set.
func (v *Vault) SelectWinners(ctx context.Context) ([]common.Address, error) {
	v.mu.Lock()

	switch v.phase {
	case PhaseUninitialized:
		v.mu.Unlock()
		return nil, v.reject("select_winners", ErrNotInitialized)
	case PhaseBidding, PhaseAssessing:
		v.mu.Unlock()
		return nil, v.reject("select_winners", ErrNotAssessed)
	}

	if len(v.order) == 0 {
		v.mu.Unlock()
		return nil, v.reject("select_winners", ErrNoParticipants)
	}

	fresh := v.selectWinnersLocked()
	winners := append([]common.Address(nil), v.winners...)
	distance := v.winningDistance
	price := v.assessedPrice
	v.mu.Unlock()

	if fresh {
		v.publishWinners(ctx, winners, distance, price)
	}

	return winners, nil
}

// selectWinnersLocked must be called with v.mu held and at least one bet.
// It reports whether the winners were computed by this call.
func (v *Vault) selectWinnersLocked() bool {
	if v.winnersSelected {
		return false
	}

	bets := make([]*Bet, 0, len(v.order))
	for _, addr := range v.order {
		bets = append(bets, v.bets[addr])
	}

	v.winners, v.winningDistance = selectWinners(bets, v.assessedPrice)
	v.winnersSelected = true
	return true
}

func (v *Vault) publishWinners(ctx context.Context, winners []common.Address, distance uint64, price int64) {
	WinnersPerVault.Observe(float64(len(winners)))
	v.logger.Info("winners-selected",
		zap.Int("winners", len(winners)),
		zap.Uint64("winning-distance", distance),
		zap.Int64("price", price))

	event := NewEvent(EventWinnersSelected, v.address, v.clock.Now())
	event.Price = price
	event.Data = map[string]string{
		"winners":          strconv.Itoa(len(winners)),
		"winning_distance": formatDistance(distance),
	}
	v.publish(ctx, event)
}

// Close resolves the vault: it assesses the price if needed, selects the
// winners and pays them. State is committed before any transfer is made, so a
// winner reentering from its receive hook observes a resolved vault.
func (v *Vault) Close(ctx context.Context) error {
	v.mu.Lock()

	err := v.checkCloseLocked()
	if err != nil {
		v.mu.Unlock()
		return v.reject("close", err)
	}

	if v.phase == PhaseBidding {
		if v.clock.Now().Before(v.biddingEnd) {
			v.mu.Unlock()
			return v.reject("close", ErrTooEarly)
		}

		v.mu.Unlock()
		err = v.AssessPrice(ctx)
		if err != nil && !errors.Is(err, ErrAlreadyAssessed) {
			return fmt.Errorf("assess price: %w", err)
		}
		v.mu.Lock()

		err = v.checkCloseLocked()
		if err != nil {
			v.mu.Unlock()
			return v.reject("close", err)
		}
	}

	if v.phase != PhaseAssessed {
		v.mu.Unlock()
		return v.reject("close", ErrAssessmentInProgress)
	}

	fresh := v.selectWinnersLocked()
	winners := append([]common.Address(nil), v.winners...)
	distance := v.winningDistance
	price := v.assessedPrice
	pool := new(big.Int).Set(v.pool)

	payouts := splitPool(pool, winners)

	v.pool.SetInt64(0)
	v.setPhase(PhaseResolved)
	v.mu.Unlock()

	ResolutionsTotal.Inc()

	if fresh {
		v.publishWinners(ctx, winners, distance, price)
	}

	v.logger.Info("vault-resolved",
		zap.Int64("price", price),
		zap.Int("winners", len(winners)),
		zap.String("pool", pool.String()))

	for _, p := range payouts {
		v.pay(ctx, p)
	}

	return nil
}

// checkCloseLocked must be called with v.mu held.
func (v *Vault) checkCloseLocked() error {
	switch v.phase {
	case PhaseUninitialized:
		return ErrNotInitialized
	case PhaseResolved:
		return ErrAlreadyResolved
	case PhaseAssessing:
		return ErrAssessmentInProgress
	}

	if len(v.order) == 0 {
		return ErrNoParticipants
	}

	return nil
}

// pay pushes one payout. A rejected transfer parks the amount for Withdraw.
func (v *Vault) pay(ctx context.Context, p payout) {
	err := v.ledger.Transfer(ctx, v.address, p.winner, p.amount)
	if err != nil {
		v.mu.Lock()
		v.addUnclaimedLocked(p.winner, p.amount)
		v.mu.Unlock()

		PayoutsTotal.WithLabelValues("deferred").Inc()
		v.logger.Warn("payout-deferred",
			zap.String("winner", p.winner.Hex()),
			zap.String("amount", p.amount.String()),
			zap.Error(err))

		event := NewEvent(EventPayoutDeferred, v.address, v.clock.Now())
		event.Actor = p.winner
		event.Amount = new(big.Int).Set(p.amount)
		event.Data = map[string]string{"error": err.Error()}
		v.publish(ctx, event)
		return
	}

	PayoutsTotal.WithLabelValues("paid").Inc()
	v.logger.Info("payout-sent",
		zap.String("winner", p.winner.Hex()),
		zap.String("amount", p.amount.String()))

	event := NewEvent(EventPayout, v.address, v.clock.Now())
	event.Actor = p.winner
	event.Amount = new(big.Int).Set(p.amount)
	v.publish(ctx, event)
}

// Withdraw pays out an entitlement parked by a rejected payout transfer.
func (v *Vault) Withdraw(ctx context.Context, bettor common.Address) (*big.Int, error) {
	v.mu.Lock()

	amount, ok := v.unclaimed[bettor]
	if !ok || amount.Sign() == 0 {
		v.mu.Unlock()
		return nil, v.reject("withdraw", ErrNothingToWithdraw)
	}
	delete(v.unclaimed, bettor)
	v.mu.Unlock()

	err := v.ledger.Transfer(ctx, v.address, bettor, amount)
	if err != nil {
		v.mu.Lock()
		v.addUnclaimedLocked(bettor, amount)
		v.mu.Unlock()

		PayoutsTotal.WithLabelValues("withdraw_failed").Inc()
		return nil, fmt.Errorf("withdraw: %w", err)
	}

	PayoutsTotal.WithLabelValues("withdrawn").Inc()
	v.logger.Info("payout-withdrawn",
		zap.String("winner", bettor.Hex()),
		zap.String("amount", amount.String()))

	event := NewEvent(EventWithdrawal, v.address, v.clock.Now())
	event.Actor = bettor
	event.Amount = new(big.Int).Set(amount)
	v.publish(ctx, event)

	return new(big.Int).Set(amount), nil
}

// addUnclaimedLocked must be called with v.mu held.
func (v *Vault) addUnclaimedLocked(bettor common.Address, amount *big.Int) {
	current, ok := v.unclaimed[bettor]
	if !ok {
		current = new(big.Int)
		v.unclaimed[bettor] = current
	}
	current.Add(current, amount)
}

// distance returns |guess - price| without overflowing.
func distance(guess int64, price int64) uint64 {
	if guess >= price {
		return uint64(guess) - uint64(price)
	}
	return uint64(price) - uint64(guess)
}

// selectWinners returns every bettor at the minimum distance, in the order of bets.
func selectWinners(bets []*Bet, price int64) ([]common.Address, uint64) {
	var (
		winners []common.Address
		best    uint64
	)

	for i, b := range bets {
		d := distance(b.GuessedPrice, price)
		switch {
		case i == 0 || d < best:
			best = d
			winners = []common.Address{b.Bettor}
		case d == best:
			winners = append(winners, b.Bettor)
		}
	}

	return winners, best
}

// splitPool divides pool evenly between winners. The indivisible remainder
// goes to the first winner, which is the earliest placed winning bid.
func splitPool(pool *big.Int, winners []common.Address) []payout {
	if len(winners) == 0 || pool.Sign() <= 0 {
		return nil
	}

	share, remainder := new(big.Int).QuoRem(pool, big.NewInt(int64(len(winners))), new(big.Int))

	payouts := make([]payout, 0, len(winners))
	for i, w := range winners {
		amount := new(big.Int).Set(share)
		if i == 0 {
			amount.Add(amount, remainder)
		}
		if amount.Sign() == 0 {
			continue
		}
		payouts = append(payouts, payout{winner: w, amount: amount})
	}

	return payouts
}
