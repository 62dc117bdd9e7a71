package models

import "time"

// User is an account record. TokenVersion is the revocation counter embedded
// in every issued token; bumping it invalidates all older refresh tokens.
type User struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	Mobile       *string
	PasswordHash string
	TokenVersion int
	CreatedAt    time.Time
}
