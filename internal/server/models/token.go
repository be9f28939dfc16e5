package models

import "time"

// Token represents one active session. The value is an opaque random
// string; Active is flipped to false on logout, on revocation, or when
// an expired token is discovered during resolution.
type Token struct {
	ID        string
	UserID    string
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Active    bool
}
