package identity

import "time"

// User represents a registered account holder.
type User struct {
	ID               string
	Email            string
	FirstName        string
	LastName         string
	DocumentType     string
	DocumentNumber   string
	PasswordHash     []byte
	TwoFactorEnabled bool
	TokenVersion     int
	CreatedAt        time.Time
	LastLogin        time.Time
}

// Credentials carries login or registration input.
type Credentials struct {
	Email          string
	Password       string
	FirstName      string
	LastName       string
	DocumentType   string
	DocumentNumber string
}
