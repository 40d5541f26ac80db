package appointments

import "errors"

var (
	// ErrMissingClient is returned when no client is referenced.
	ErrMissingClient = errors.New("clientId is required")

	// ErrMissingClinician is returned when no attending clinician is set.
	ErrMissingClinician = errors.New("clinicianId is required")

	// ErrMissingStart is returned when the start time is absent.
	ErrMissingStart = errors.New("dateOfSession is required")

	// ErrInvalidStatus is returned for an unknown status value.
	ErrInvalidStatus = errors.New("invalid appointment status")

	// ErrStartInPast is returned when the start time is strictly in the past.
	ErrStartInPast = errors.New("appointment cannot start in the past")

	// ErrDurationOutOfRange is returned when duration is outside the permitted range.
	ErrDurationOutOfRange = errors.New("duration must be between 15 and 480 minutes")

	// ErrNotFound is returned when an appointment does not exist.
	ErrNotFound = errors.New("appointment not found")
)
