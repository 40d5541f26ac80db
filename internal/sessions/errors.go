package sessions

import "errors"

var (
	// ErrMissingClient is returned when no client is referenced.
	ErrMissingClient = errors.New("clientId is required")

	// ErrMissingClinician is returned when no attending clinician is set.
	ErrMissingClinician = errors.New("clinicianId is required")

	// ErrMissingStart is returned when the session time is absent.
	ErrMissingStart = errors.New("dateOfSession is required")

	// ErrMissingContent is returned when the note body is empty.
	ErrMissingContent = errors.New("content is required")

	// ErrNotFound is returned when a session note does not exist.
	ErrNotFound = errors.New("session note not found")

	// ErrAttachmentNotFound is returned when a stored attachment is missing.
	ErrAttachmentNotFound = errors.New("attachment not found")
)
