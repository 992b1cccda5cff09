package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency. Callers match with
// errors.Is; transport layers map them to status codes.

var (
	// Lookup errors
	ErrUserNotFound = errors.New("user layer state not found")
	ErrNotFound     = errors.New("not found")

	// Migration errors
	ErrInvalidTransition     = errors.New("invalid transition")
	ErrUnsupportedTransition = errors.New("unsupported transition")
	ErrUnknownMode           = errors.New("unknown economic mode")

	// Abundance / need action errors
	ErrAlreadyFulfilled = errors.New("need already fulfilled")
	ErrExpired          = errors.New("post has expired")

	// Validation
	ErrMissingField = errors.New("required field missing")
)
