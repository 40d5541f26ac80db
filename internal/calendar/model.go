package calendar

import "time"

// Connection stores a staff member's OAuth token set for their personal
// calendar. Every connected user receives a mirror of every appointment.
type Connection struct {
	UserID       string    `dynamodbav:"userId" json:"userId"`
	UserName     string    `dynamodbav:"userName,omitempty" json:"userName,omitempty"`
	UserEmail    string    `dynamodbav:"userEmail,omitempty" json:"userEmail,omitempty"`
	AccessToken  string    `dynamodbav:"accessToken" json:"-"`
	RefreshToken string    `dynamodbav:"refreshToken" json:"-"`
	Scope        string    `dynamodbav:"scope,omitempty" json:"scope,omitempty"`
	TokenExpiry  time.Time `dynamodbav:"tokenExpiry" json:"tokenExpiry"`
	ConnectedAt  time.Time `dynamodbav:"connectedAt" json:"connectedAt"`
	UpdatedAt    time.Time `dynamodbav:"updatedAt" json:"updatedAt"`
}

// Expired reports whether the access token has passed its expiry.
func (c *Connection) Expired(now time.Time) bool {
	return !c.TokenExpiry.IsZero() && now.After(c.TokenExpiry)
}

// SourceKind tags what record an event mirrors.
type SourceKind string

const (
	SourceAppointment SourceKind = "appointment"
	SourceSession     SourceKind = "session"
)

// EventSource is the calendar-facing view of an appointment or session note.
// The Kind tag is required; the sync layer never inspects the originating
// record directly.
type EventSource struct {
	Kind          SourceKind
	ID            string
	ClientName    string
	ClinicianID   string
	ClinicianName string
	Type          string
	Location      string
	Notes         string
	Start         time.Time
	End           time.Time

	// EventIDs maps recipient user id to the provider event id previously
	// created in that user's calendar. Each recipient's copy is an
	// independent event, so updates and deletes fan out per recipient.
	EventIDs map[string]string
}

// Operation selects the mirroring action.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// ValidOperation reports whether op is one of create/update/delete.
func ValidOperation(op Operation) bool {
	return op == OpCreate || op == OpUpdate || op == OpDelete
}

// RecipientError records a single recipient's sync failure for diagnostics.
type RecipientError struct {
	UserID string `json:"userId"`
	Error  string `json:"error"`
}

// SyncResult summarizes a fan-out. Failures are informational only; the
// triggering record write has already succeeded and is never rolled back.
type SyncResult struct {
	Operation Operation         `json:"operation"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	EventIDs  map[string]string `json:"eventIds,omitempty"`
	Errors    []RecipientError  `json:"errors,omitempty"`
}

// Event is the provider-neutral calendar event payload.
type Event struct {
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

// eventFromSource renders the calendar event for a source record.
func eventFromSource(src EventSource) Event {
	summary := src.ClientName
	if summary == "" {
		summary = "Client session"
	}
	if src.Type != "" {
		summary += " - " + src.Type
	}
	description := "Clinician: " + src.ClinicianName
	if src.Notes != "" {
		description += "\n\n" + src.Notes
	}
	return Event{
		Summary:     summary,
		Description: description,
		Location:    src.Location,
		Start:       src.Start,
		End:         src.End,
	}
}
