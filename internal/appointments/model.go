package appointments

import (
	"strings"
	"time"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusTentative Status = "tentative"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// ValidStatus reports whether s is a known appointment status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusConfirmed, StatusTentative, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Appointment is a scheduled clinician-client time slot.
type Appointment struct {
	ID              string            `dynamodbav:"id" json:"id"`
	ClientID        string            `dynamodbav:"clientId" json:"clientId"`
	ClientName      string            `dynamodbav:"clientName" json:"clientName"`
	ClinicianID     string            `dynamodbav:"clinicianId" json:"clinicianId"`
	ClinicianName   string            `dynamodbav:"clinicianName" json:"clinicianName"`
	Type            string            `dynamodbav:"type" json:"type"`
	Status          Status            `dynamodbav:"status" json:"status"`
	StartAt         time.Time         `dynamodbav:"dateOfSession" json:"dateOfSession"`
	DurationMinutes int               `dynamodbav:"duration" json:"duration"`
	Location        string            `dynamodbav:"location,omitempty" json:"location,omitempty"`
	Content         string            `dynamodbav:"content,omitempty" json:"content,omitempty"`
	CalendarEventIDs map[string]string `dynamodbav:"calendarEventIds,omitempty" json:"calendarEventIds,omitempty"`
	DocumentID      string            `dynamodbav:"documentId,omitempty" json:"documentId,omitempty"`
	DocumentURL     string            `dynamodbav:"documentUrl,omitempty" json:"documentUrl,omitempty"`
	CreatedBy       string            `dynamodbav:"createdBy" json:"createdBy"`
	CreatedAt       time.Time         `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time         `dynamodbav:"updatedAt" json:"updatedAt"`
}

// EndAt returns the exclusive end instant of the slot.
func (a *Appointment) EndAt() time.Time {
	return a.StartAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// CreateRequest is the request body for creating an appointment.
type CreateRequest struct {
	ClientID        string `json:"clientId"`
	ClientName      string `json:"clientName"`
	ClinicianID     string `json:"clinicianId"`
	ClinicianName   string `json:"clinicianName"`
	Type            string `json:"type"`
	Status          Status `json:"status"`
	StartAt         string `json:"dateOfSession"`
	DurationMinutes int    `json:"duration"`
	Location        string `json:"location"`
	Content         string `json:"content"`
}

// Validate checks required fields and normalizes the status.
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
	if r.Status == "" {
		r.Status = StatusConfirmed
	}
	if !ValidStatus(r.Status) {
		return ErrInvalidStatus
	}
	return nil
}

// UpdateRequest carries mutable appointment fields. Empty fields are left
// untouched on write, matching the store's filter-before-write behavior.
type UpdateRequest struct {
	Type            string `json:"type,omitempty"`
	Status          Status `json:"status,omitempty"`
	StartAt         string `json:"dateOfSession,omitempty"`
	DurationMinutes int    `json:"duration,omitempty"`
	Location        string `json:"location,omitempty"`
	Content         string `json:"content,omitempty"`
}
