package repository

import "errors"

// Common repository errors
var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateEmail is returned when trying to create a user with an existing email
	ErrDuplicateEmail = errors.New("user with this email already exists")

	// ErrDuplicateFederation is returned when an external identity is already linked to another user
	ErrDuplicateFederation = errors.New("external identity already linked")

	// ErrConflict is returned when a conditional update matched no row,
	// e.g. a refresh token rotated by a concurrent request
	ErrConflict = errors.New("record changed concurrently")
)
