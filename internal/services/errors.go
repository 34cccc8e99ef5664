package services

import "errors"

// Transfer errors. All of them are expected outcomes returned to the caller;
// store failures are wrapped separately and surfaced for a retry decision.
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrSameAccount         = errors.New("cannot transfer to the same account")
	ErrInvalidAmount       = errors.New("amount must be a positive integer")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Verification errors.
var (
	ErrCodeNotFound = errors.New("no verification code for identity")
	ErrCodeExpired  = errors.New("verification code expired")
	ErrCodeMismatch = errors.New("verification code mismatch")

	// ErrNotificationFailed is non-fatal on issue: the code is already
	// persisted and valid, only delivery failed.
	ErrNotificationFailed = errors.New("notification delivery failed")

	ErrRateLimited = errors.New("rate limit exceeded")
)
