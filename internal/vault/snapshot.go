package vault

import (
	"time"
)

// BetView is the read model of a bet.
type BetView struct {
	Bettor       string    `json:"bettor"`
	GuessedPrice int64     `json:"guessed_price"`
	StakedAmount string    `json:"staked_amount"`
	Active       bool      `json:"active"`
	PlacedAt     time.Time `json:"placed_at"`
}

// Snapshot is an immutable copy of a vault's state for APIs and reports.
type Snapshot struct {
	Address           string            `json:"address"`
	Oracle            string            `json:"oracle"`
	Phase             Phase             `json:"phase"`
	BiddingEndTime    time.Time         `json:"bidding_end_time"`
	WholeRoundEndTime time.Time         `json:"whole_round_end_time"`
	AssessedPrice     *int64            `json:"assessed_price,omitempty"`
	OracleDecimals    uint8             `json:"oracle_decimals,omitempty"`
	Pool              string            `json:"pool"`
	Balance           string            `json:"balance"`
	Bets              []BetView         `json:"bets"`
	Winners           []string          `json:"winners"`
	WinningDistance   *uint64           `json:"winning_distance,omitempty"`
	Unclaimed         map[string]string `json:"unclaimed,omitempty"`
}

// NewBetView renders a bet for APIs.
func NewBetView(b Bet) BetView {
	view := BetView{
		Bettor:       b.Bettor.Hex(),
		GuessedPrice: b.GuessedPrice,
		StakedAmount: "0",
		Active:       b.Active,
		PlacedAt:     b.PlacedAt,
	}
	if b.StakedAmount != nil {
		view.StakedAmount = b.StakedAmount.String()
	}
	return view
}

// Snapshot copies the vault state.
func (v *Vault) Snapshot() Snapshot {
	balance := v.Balance()

	v.mu.Lock()
	defer v.mu.Unlock()

	s := Snapshot{
		Address:           v.address.Hex(),
		Oracle:            v.oracleAddr.Hex(),
		Phase:             v.phase,
		BiddingEndTime:    v.biddingEnd,
		WholeRoundEndTime: v.wholeRoundEnd,
		Pool:              v.pool.String(),
		Balance:           balance.String(),
		Bets:              make([]BetView, 0, len(v.order)),
		Winners:           make([]string, 0, len(v.winners)),
	}

	if v.phase >= PhaseAssessed {
		price := v.assessedPrice
		s.AssessedPrice = &price
		s.OracleDecimals = v.oracleDecimals
	}

	for _, addr := range v.order {
		s.Bets = append(s.Bets, NewBetView(copyBet(v.bets[addr])))
	}

	if v.winnersSelected {
		d := v.winningDistance
		s.WinningDistance = &d
		for _, w := range v.winners {
			s.Winners = append(s.Winners, w.Hex())
		}
	}

	if len(v.unclaimed) > 0 {
		s.Unclaimed = make(map[string]string, len(v.unclaimed))
		for addr, amount := range v.unclaimed {
			s.Unclaimed[addr.Hex()] = amount.String()
		}
	}

	return s
}
