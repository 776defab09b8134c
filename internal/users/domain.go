package users

import "time"

// User is an account as seen by the administration screens.
type User struct {
	ID           int64
	Name         string
	Username     string
	Email        string
	PasswordHash string
	Role         string
	RegisteredAt time.Time
}
