package domain

import "errors"

// Error classes. Specific errors wrap one of these so callers can branch
// with errors.Is on the class alone.
var (
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrTransient    = errors.New("transient network error")
	ErrFatalSession = errors.New("fatal session error")
	ErrOffline      = errors.New("channel offline")
)

var (
	ErrInvalidProduct     = classed(ErrValidation, "unknown product")
	ErrInvalidDuration    = classed(ErrValidation, "round duration out of range")
	ErrBidTooLow          = classed(ErrValidation, "bid below starting price")
	ErrInvalidBid         = classed(ErrValidation, "bid missing bidder or amount")
	ErrEmptyMessage       = classed(ErrValidation, "empty chat message")
	ErrRoundAlreadyActive = classed(ErrConflict, "bidding round already active")
	ErrNoActiveRound      = classed(ErrConflict, "no active bidding round")
	ErrSessionNotActive   = classed(ErrConflict, "session not active")
	ErrDuplicateBid       = errors.New("duplicate bid")
)

type classError struct {
	class error
	msg   string
}

func classed(class error, msg string) error {
	return &classError{class: class, msg: msg}
}

func (e *classError) Error() string { return e.msg }

func (e *classError) Unwrap() error { return e.class }
