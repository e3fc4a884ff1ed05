package store

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned when creating a user whose email is
	// already registered.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrDuplicateOAuthID is returned when creating a user whose OAuth
	// id is already linked to another account.
	ErrDuplicateOAuthID = errors.New("oauth id already linked")
)
