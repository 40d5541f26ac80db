// Package sessions manages clinical session notes and their attachments.
package sessions

import (
	"strings"
	"time"
)

// Note is the record of one held session with a client.
type Note struct {
	ID            string `dynamodbav:"id" json:"id"`
	ClientID      string `dynamodbav:"clientId" json:"clientId"`
	ClientName    string `dynamodbav:"clientName" json:"clientName"`
	ClinicianID   string `dynamodbav:"clinicianId" json:"clinicianId"`
	ClinicianName string `dynamodbav:"clinicianName" json:"clinicianName"`

	// SessionNumber is assigned at creation: one more than the client's
	// existing note count. It is never recomputed afterwards, so deleting
	// an old note does not renumber the rest.
	SessionNumber int `dynamodbav:"sessionNumber" json:"sessionNumber"`

	Type            string    `dynamodbav:"type" json:"type"`
	StartAt         time.Time `dynamodbav:"dateOfSession" json:"dateOfSession"`
	DurationMinutes int       `dynamodbav:"duration" json:"duration"`
	Location        string    `dynamodbav:"location,omitempty" json:"location,omitempty"`
	Content         string    `dynamodbav:"content" json:"content"`

	AttachmentKeys   []string          `dynamodbav:"attachmentKeys,omitempty" json:"attachmentKeys,omitempty"`
	CalendarEventIDs map[string]string `dynamodbav:"calendarEventIds,omitempty" json:"calendarEventIds,omitempty"`

	CreatedBy string    `dynamodbav:"createdBy" json:"createdBy"`
	CreatedAt time.Time `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `dynamodbav:"updatedAt" json:"updatedAt"`
}

// EndAt returns the exclusive end instant of the session.
func (n *Note) EndAt() time.Time {
	return n.StartAt.Add(time.Duration(n.DurationMinutes) * time.Minute)
}

// CreateRequest is the request body for a new session note.
type CreateRequest struct {
	ClientID        string `json:"clientId"`
	ClientName      string `json:"clientName"`
	ClinicianID     string `json:"clinicianId"`
	ClinicianName   string `json:"clinicianName"`
	Type            string `json:"type"`
	StartAt         string `json:"dateOfSession"`
	DurationMinutes int    `json:"duration"`
	Location        string `json:"location"`
	Content         string `json:"content"`
}

// Validate checks required fields.
func (r *CreateRequest) Validate() error {
	if strings.TrimSpace(r.ClientID) == "" {
		return ErrMissingClient
	}
	if strings.TrimSpace(r.ClinicianID) == "" {
		return ErrMissingClinician
	}
	if strings.TrimSpace(r.StartAt) == "" {
		return ErrMissingStart
	}
	if strings.TrimSpace(r.Content) == "" {
		return ErrMissingContent
	}
	return nil
}

// UpdateRequest carries mutable note fields. Empty fields are left untouched.
type UpdateRequest struct {
	Type            string `json:"type,omitempty"`
	StartAt         string `json:"dateOfSession,omitempty"`
	DurationMinutes int    `json:"duration,omitempty"`
	Location        string `json:"location,omitempty"`
	Content         string `json:"content,omitempty"`
}
