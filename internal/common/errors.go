// Package common defines shared constants and sentinel errors used across
// the layers of FileKeeper. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Validation errors: missing or malformed filename, empty payload,
	// path traversal sequences.
	ErrorInvalidInput = errors.New("invalid input")

	// Uniqueness violations: duplicate filename for a user, duplicate login.
	ErrorConflict = errors.New("already exists")
)
