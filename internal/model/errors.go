package model

import "errors"

// Categorized wagering errors. Validation errors reject the operation with
// no state mutated; conflict errors reject without disturbing the round
// lifecycle.
var (
	ErrRoundClosed         = errors.New("round is closed for betting")
	ErrInvalidStake        = errors.New("stake must be positive")
	ErrInvalidColor        = errors.New("unknown color")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAlreadyResolved     = errors.New("round already resolved")
	ErrAlreadyClaimed      = errors.New("daily reward already claimed")
	ErrUserNotFound        = errors.New("user not found")
)
