// Package credstore provides persisted username→password credential
// storage. Implementations include the default flat-file store (the legacy
// newline-delimited "username password" format), a SQLite store with hashed
// passwords, and an in-memory store for tests.
//
// Credential policy (username and password length) is enforced by the
// router, not here; stores only guarantee lookup and atomic
// check-and-reserve creation.
package credstore

import (
	"errors"

	"github.com/parlorchat/parlor/pkg/model"
)

var (
	// ErrUserExists is returned by Create when the username is taken.
	ErrUserExists = errors.New("credstore: user already exists")
	// ErrBadCredentials is returned by Authenticate for an unknown user or
	// a wrong password. Callers surface one generic denial either way.
	ErrBadCredentials = errors.New("credstore: unknown user or wrong password")
)

// Store is the credential persistence contract.
type Store interface {
	// Authenticate returns nil when the username exists and the password
	// matches, ErrBadCredentials otherwise.
	Authenticate(username, password string) error

	// Create durably records a new user before returning success; a user
	// is never considered authoritative without the durable write. The
	// check-and-reserve is atomic: concurrent Creates of the same name
	// yield exactly one success and ErrUserExists for the rest.
	Create(username, password string) error

	// ListUsers returns all registered users in registration order.
	ListUsers() ([]model.User, error)

	Close() error
}
