package vault

import "errors"

// Error is a vault rejection. Code is stable and machine readable; Reason is
// the human readable message returned to callers.
type Error struct {
	Code   string
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

// Code extracts the rejection code from err, or "" when err is not a vault rejection.
func Code(err error) string {
	var vErr *Error
	if errors.As(err, &vErr) {
		return vErr.Code
	}
	return ""
}

var (
	ErrForbidden            = &Error{Code: "forbidden", Reason: "Template cannot be initialized"}
	ErrAlreadyInitialized   = &Error{Code: "already_initialized", Reason: "Vault already initialized"}
	ErrInvalidWindow        = &Error{Code: "invalid_window", Reason: "Bidding time must be before whole bid ends"}
	ErrWindowAlreadyPassed  = &Error{Code: "window_already_passed", Reason: "Bidding must end after now"}
	ErrInvalidOracle        = &Error{Code: "invalid_oracle", Reason: "Oracle address cannot be zero"}
	ErrNotInitialized       = &Error{Code: "not_initialized", Reason: "Vault is not initialized"}
	ErrBiddingClosed        = &Error{Code: "bidding_closed", Reason: "Bidding is closed"}
	ErrDuplicateBid         = &Error{Code: "duplicate_bid", Reason: "Address already placed a bid"}
	ErrInvalidStake         = &Error{Code: "invalid_stake", Reason: "Stake must be greater than zero"}
	ErrTooEarly             = &Error{Code: "too_early", Reason: "Bidding time has not ended yet"}
	ErrAlreadyAssessed      = &Error{Code: "already_assessed", Reason: "Price already assessed"}
	ErrAssessmentInProgress = &Error{Code: "assessment_in_progress", Reason: "Price assessment in progress"}
	ErrNotAssessed          = &Error{Code: "not_assessed", Reason: "Price has not been assessed"}
	ErrInvalidOraclePrice   = &Error{Code: "invalid_oracle_price", Reason: "Oracle price cannot be normalized"}
	ErrNoParticipants       = &Error{Code: "no_participants", Reason: "Vault has no bets"}
	ErrAlreadyResolved      = &Error{Code: "already_resolved", Reason: "Vault already resolved"}
	ErrNothingToWithdraw    = &Error{Code: "nothing_to_withdraw", Reason: "Nothing to withdraw"}
	ErrInvalidBettor        = &Error{Code: "invalid_bettor", Reason: "Bettor must be an external account"}
)
