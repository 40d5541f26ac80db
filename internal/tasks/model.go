// Package tasks manages the clinic's to-do items, both user-created and
// system-generated.
package tasks

import (
	"errors"
	"strings"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusOpen      Status = "open"
	StatusCompleted Status = "completed"
)

// ValidStatus reports whether s is a known task status.
func ValidStatus(s Status) bool {
	return s == StatusOpen || s == StatusCompleted
}

// Task is one to-do item, optionally tied to a client.
type Task struct {
	ID          string `dynamodbav:"id" json:"id"`
	Title       string `dynamodbav:"title" json:"title"`
	Description string `dynamodbav:"description,omitempty" json:"description,omitempty"`
	AssigneeID  string `dynamodbav:"assigneeId,omitempty" json:"assigneeId,omitempty"`
	ClientID    string `dynamodbav:"clientId,omitempty" json:"clientId,omitempty"`
	Status      Status `dynamodbav:"status" json:"status"`

	// IsSystemGenerated marks tasks the platform created on its own, such
	// as intake follow-ups. Only a Super Admin may delete one.
	IsSystemGenerated bool `dynamodbav:"isSystemGenerated" json:"isSystemGenerated"`

	DueAt       *time.Time `dynamodbav:"dueAt,omitempty" json:"dueAt,omitempty"`
	CompletedAt *time.Time `dynamodbav:"completedAt,omitempty" json:"completedAt,omitempty"`
	CreatedBy   string     `dynamodbav:"createdBy,omitempty" json:"createdBy,omitempty"`
	CreatedAt   time.Time  `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time  `dynamodbav:"updatedAt" json:"updatedAt"`
}

// CreateRequest is the request body for a new task.
type CreateRequest struct {
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	AssigneeID        string     `json:"assigneeId"`
	ClientID          string     `json:"clientId"`
	DueAt             *time.Time `json:"dueAt"`
	IsSystemGenerated bool       `json:"isSystemGenerated"`
}

// Validate checks required fields.
func (r *CreateRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return ErrMissingTitle
	}
	return nil
}

// UpdateRequest carries mutable task fields.
type UpdateRequest struct {
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	AssigneeID  string     `json:"assigneeId,omitempty"`
	Status      Status     `json:"status,omitempty"`
	DueAt       *time.Time `json:"dueAt,omitempty"`
}

var (
	// ErrMissingTitle is returned when a task has no title.
	ErrMissingTitle = errors.New("title is required")

	// ErrInvalidStatus is returned for an unknown task status.
	ErrInvalidStatus = errors.New("invalid task status")

	// ErrNotFound is returned when a task does not exist.
	ErrNotFound = errors.New("task not found")
)
