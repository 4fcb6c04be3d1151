package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientCredits = errors.New("insufficient credits")

	ErrForbidden     = errors.New("not allowed for this role")
	ErrBanned        = errors.New("participant is banned from this livestream")
	ErrNoActiveRound = errors.New("no active bidding round")
)
