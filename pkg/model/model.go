// Package model defines the core domain types for Parlor.
package model

import (
	"errors"
	"fmt"
	"time"
)

// Username and password policy limits. A username must be strictly shorter
// than MaxUsernameLength; a password length must fall within
// [MinPasswordLength, MaxPasswordLength].
const (
	MaxUsernameLength = 32
	MinPasswordLength = 4
	MaxPasswordLength = 8
)

var ErrUsernameEmpty = errors.New("username must not be empty")
var ErrUsernameTooLong = fmt.Errorf("username must be shorter than %d characters", MaxUsernameLength)
var ErrUsernameInvalidChars = errors.New("username must not contain whitespace")
var ErrPasswordLength = fmt.Errorf("password must be %d to %d characters", MinPasswordLength, MaxPasswordLength)

// User represents a registered user in the credential store.
type User struct {
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidateUsername checks that a username is non-empty, shorter than
// MaxUsernameLength, and free of whitespace (usernames travel inside
// space-delimited commands). Returns nil on success or a descriptive error.
func ValidateUsername(name string) error {
	if len(name) == 0 {
		return ErrUsernameEmpty
	}
	if len(name) >= MaxUsernameLength {
		return ErrUsernameTooLong
	}
	for _, r := range name {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			return ErrUsernameInvalidChars
		}
	}
	return nil
}

// ValidatePassword checks that a password length is within the allowed range.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		return ErrPasswordLength
	}
	return nil
}
