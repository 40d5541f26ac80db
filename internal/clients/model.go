// Package clients manages the clinic's client records.
package clients

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a client record.
type Status string

const (
	StatusActive     Status = "active"
	StatusWaitlist   Status = "waitlist"
	StatusInactive   Status = "inactive"
	StatusDischarged Status = "discharged"
)

// ValidStatus reports whether s is a known client status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusActive, StatusWaitlist, StatusInactive, StatusDischarged:
		return true
	}
	return false
}

// EmergencyContact is the person to reach when a client cannot be.
type EmergencyContact struct {
	Name     string `dynamodbav:"name,omitempty" json:"name,omitempty"`
	Relation string `dynamodbav:"relation,omitempty" json:"relation,omitempty"`
	Phone    string `dynamodbav:"phone,omitempty" json:"phone,omitempty"`
}

// Client is one person receiving care.
type Client struct {
	ID          string `dynamodbav:"id" json:"id"`
	FirstName   string `dynamodbav:"firstName" json:"firstName"`
	LastName    string `dynamodbav:"lastName" json:"lastName"`
	Email       string `dynamodbav:"email,omitempty" json:"email,omitempty"`
	Phone       string `dynamodbav:"phone,omitempty" json:"phone,omitempty"`
	DateOfBirth string `dynamodbav:"dateOfBirth,omitempty" json:"dateOfBirth,omitempty"`
	Address     string `dynamodbav:"address,omitempty" json:"address,omitempty"`
	Status      Status `dynamodbav:"status" json:"status"`

	// PrimaryClinicianID is the lead clinician; TeamClinicianIDs are the
	// additional clinicians with access to this client's records.
	PrimaryClinicianID string   `dynamodbav:"primaryClinicianId,omitempty" json:"primaryClinicianId,omitempty"`
	TeamClinicianIDs   []string `dynamodbav:"teamClinicianIds,omitempty" json:"teamClinicianIds,omitempty"`

	EmergencyContact *EmergencyContact `dynamodbav:"emergencyContact,omitempty" json:"emergencyContact,omitempty"`

	// Demographics holds the intake fields mirrored into the client's
	// document whenever they change.
	Demographics map[string]any `dynamodbav:"demographics,omitempty" json:"demographics,omitempty"`

	DocumentID  string    `dynamodbav:"documentId,omitempty" json:"documentId,omitempty"`
	DocumentURL string    `dynamodbav:"documentUrl,omitempty" json:"documentUrl,omitempty"`
	CreatedBy   string    `dynamodbav:"createdBy,omitempty" json:"createdBy,omitempty"`
	CreatedAt   time.Time `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time `dynamodbav:"updatedAt" json:"updatedAt"`
}

// FullName joins the name parts for display and document titles.
func (c *Client) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// OnTeam reports whether the given user is the primary clinician or on the
// client's care team.
func (c *Client) OnTeam(userID string) bool {
	if c.PrimaryClinicianID == userID {
		return true
	}
	for _, id := range c.TeamClinicianIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// CreateRequest is the request body for a new client record.
type CreateRequest struct {
	FirstName          string            `json:"firstName"`
	LastName           string            `json:"lastName"`
	Email              string            `json:"email"`
	Phone              string            `json:"phone"`
	DateOfBirth        string            `json:"dateOfBirth"`
	Address            string            `json:"address"`
	Status             Status            `json:"status"`
	PrimaryClinicianID string            `json:"primaryClinicianId"`
	TeamClinicianIDs   []string          `json:"teamClinicianIds"`
	EmergencyContact   *EmergencyContact `json:"emergencyContact"`
	Demographics       map[string]any    `json:"demographics"`
}

// Validate checks required fields and normalizes the status.
func (r *CreateRequest) Validate() error {
	if strings.TrimSpace(r.FirstName) == "" || strings.TrimSpace(r.LastName) == "" {
		return ErrMissingName
	}
	if r.Status == "" {
		r.Status = StatusActive
	}
	if !ValidStatus(r.Status) {
		return ErrInvalidStatus
	}
	return nil
}

// UpdateRequest carries mutable client fields. Nil or empty fields are left
// untouched.
type UpdateRequest struct {
	FirstName          string            `json:"firstName,omitempty"`
	LastName           string            `json:"lastName,omitempty"`
	Email              string            `json:"email,omitempty"`
	Phone              string            `json:"phone,omitempty"`
	DateOfBirth        string            `json:"dateOfBirth,omitempty"`
	Address            string            `json:"address,omitempty"`
	Status             Status            `json:"status,omitempty"`
	PrimaryClinicianID string            `json:"primaryClinicianId,omitempty"`
	TeamClinicianIDs   []string          `json:"teamClinicianIds,omitempty"`
	EmergencyContact   *EmergencyContact `json:"emergencyContact,omitempty"`
	Demographics       map[string]any    `json:"demographics,omitempty"`
}
