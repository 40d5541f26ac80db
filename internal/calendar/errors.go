package calendar

import "errors"

var (
	// ErrConnectionNotFound is returned when a user has no stored calendar
	// connection.
	ErrConnectionNotFound = errors.New("calendar connection not found")

	// ErrNoRefreshToken is returned when a token is expired and cannot be
	// refreshed.
	ErrNoRefreshToken = errors.New("connection has no refresh token")

	// ErrInvalidOperation is returned for an unknown sync operation.
	ErrInvalidOperation = errors.New("operation must be create, update or delete")
)
