// Package messaging provides internal staff-to-staff message threads with a
// live websocket stream per thread.
package messaging

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrMissingSubject is returned when a thread has no subject.
	ErrMissingSubject = errors.New("subject is required")

	// ErrMissingParticipants is returned when a thread has no participants.
	ErrMissingParticipants = errors.New("at least one participant is required")

	// ErrMissingBody is returned when a message has no body.
	ErrMissingBody = errors.New("body is required")

	// ErrThreadNotFound is returned when a thread does not exist.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrNotParticipant is returned when the caller is not on the thread.
	ErrNotParticipant = errors.New("not a participant of this thread")
)

// Thread is one conversation between staff members, optionally tied to a
// client's case.
type Thread struct {
	ID             string    `dynamodbav:"id" json:"id"`
	Subject        string    `dynamodbav:"subject" json:"subject"`
	ParticipantIDs []string  `dynamodbav:"participantIds" json:"participantIds"`
	ClientID       string    `dynamodbav:"clientId,omitempty" json:"clientId,omitempty"`
	CreatedBy      string    `dynamodbav:"createdBy" json:"createdBy"`
	CreatedAt      time.Time `dynamodbav:"createdAt" json:"createdAt"`
	LastMessageAt  time.Time `dynamodbav:"lastMessageAt" json:"lastMessageAt"`
}

// HasParticipant reports whether the user is on the thread.
func (t *Thread) HasParticipant(userID string) bool {
	for _, id := range t.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Message is one post within a thread.
type Message struct {
	ID         string    `dynamodbav:"id" json:"id"`
	ThreadID   string    `dynamodbav:"threadId" json:"threadId"`
	SenderID   string    `dynamodbav:"senderId" json:"senderId"`
	SenderName string    `dynamodbav:"senderName,omitempty" json:"senderName,omitempty"`
	Body       string    `dynamodbav:"body" json:"body"`
	CreatedAt  time.Time `dynamodbav:"createdAt" json:"createdAt"`
}

// CreateThreadRequest is the request body for a new thread.
type CreateThreadRequest struct {
	Subject        string   `json:"subject"`
	ParticipantIDs []string `json:"participantIds"`
	ClientID       string   `json:"clientId"`
}

// Validate checks required fields.
func (r *CreateThreadRequest) Validate() error {
	if strings.TrimSpace(r.Subject) == "" {
		return ErrMissingSubject
	}
	if len(r.ParticipantIDs) == 0 {
		return ErrMissingParticipants
	}
	return nil
}

// PostMessageRequest is the request body for a new message.
type PostMessageRequest struct {
	Body string `json:"body"`
}
