package clients

import "errors"

var (
	// ErrMissingName is returned when first or last name is absent.
	ErrMissingName = errors.New("firstName and lastName are required")

	// ErrInvalidStatus is returned for an unknown client status.
	ErrInvalidStatus = errors.New("invalid client status")

	// ErrNotFound is returned when a client does not exist.
	ErrNotFound = errors.New("client not found")
)
