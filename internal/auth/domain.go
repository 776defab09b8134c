package auth

import "time"

// User represents a stored account with its credential digest. The plaintext
// password never leaves the request that carried it.
type User struct {
	ID           int64
	Name         string
	Username     string
	Email        string
	PasswordHash string
	Role         string
	RegisteredAt time.Time
}
