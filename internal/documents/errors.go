package documents

import "errors"

var (
	// ErrMappingNotFound is returned when a client has no document mapping.
	ErrMappingNotFound = errors.New("client document not found")

	// ErrInvalidSectionKind is returned for an unknown append type.
	ErrInvalidSectionKind = errors.New("type must be session, medical_assessment or demographics")

	// ErrCreateFailed is returned when every creation strategy errored.
	ErrCreateFailed = errors.New("all document creation strategies failed")
)
