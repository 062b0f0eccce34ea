package auth

import "errors"

// Callers branch on these three; the wrapped detail is for logs only and
// must never reach a response body, all authentication failures look the
// same to a client.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal error")
)
