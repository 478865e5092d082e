package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrValidation   = errors.New("validation failed")
	ErrOwnership    = errors.New("ownership required")
	ErrUnauthorized = errors.New("unauthorized")
	ErrState        = errors.New("illegal state transition")
	ErrNotFound     = errors.New("not found")
)
