package vault

import "fmt"

// Phase is the lifecycle stage of a vault.
type Phase uint8

const (
	// PhaseUninitialized is the permanent phase of a template and the
	// initial phase of a fresh clone.
	PhaseUninitialized Phase = iota
	// PhaseBidding accepts bets until the bidding end time.
	PhaseBidding
	// PhaseAssessing marks an oracle read in flight.
	PhaseAssessing
	// PhaseAssessed holds the observed price; winners can be selected.
	PhaseAssessed
	// PhaseResolved is terminal. The pool has been distributed.
	PhaseResolved
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseBidding:
		return "bidding"
	case PhaseAssessing:
		return "assessing"
	case PhaseAssessed:
		return "assessed"
	case PhaseResolved:
		return "resolved"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// MarshalText renders the phase name in JSON payloads.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}
