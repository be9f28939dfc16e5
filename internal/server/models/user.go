// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is an identity record. Login is unique; PasswordHash holds the
// bcrypt hash of the user's password.
type User struct {
	ID           string
	Login        string
	PasswordHash []byte
	CreatedAt    time.Time
}
