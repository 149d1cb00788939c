package ludo

import "errors"

// Command rejection taxonomy. Every rejected command leaves the match
// exactly as it was before the call.
var (
	ErrInvalidPhase   = errors.New("command does not match current turn phase")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrIllegalMove    = errors.New("token is not in the legal move set")
	ErrRngUnavailable = errors.New("dice seed store unavailable")
	ErrMatchNotFound  = errors.New("match not found")
	ErrMatchNotActive = errors.New("match is not active")
	ErrSeatTaken      = errors.New("seat already taken")
	ErrMatchFull      = errors.New("match is full")
)
