package documents

import "time"

// DocType tags what a per-client document holds.
type DocType string

const (
	DocTypeAssessment DocType = "assessment"
	DocTypeSession    DocType = "session"
	DocTypeReport     DocType = "report"
)

// ClientDocument maps a client to their external document.
type ClientDocument struct {
	ClientID    string    `dynamodbav:"clientId" json:"clientId"`
	DocumentID  string    `dynamodbav:"documentId" json:"documentId"`
	DocumentURL string    `dynamodbav:"documentUrl" json:"documentUrl"`
	DocType     DocType   `dynamodbav:"docType" json:"docType"`
	CreatedBy   string    `dynamodbav:"createdBy,omitempty" json:"createdBy,omitempty"`
	CreatedAt   time.Time `dynamodbav:"createdAt" json:"createdAt"`
}

// SectionKind selects the append template.
type SectionKind string

const (
	SectionSession      SectionKind = "session"
	SectionAssessment   SectionKind = "medical_assessment"
	SectionDemographics SectionKind = "demographics"
)

// ValidSectionKind reports whether k is a known section kind.
func ValidSectionKind(k SectionKind) bool {
	switch k {
	case SectionSession, SectionAssessment, SectionDemographics:
		return true
	}
	return false
}

// AppendRequest is one section to append to a client's document.
type AppendRequest struct {
	ClientID   string         `json:"clientId"`
	ClientName string         `json:"clientName"`
	UserID     string         `json:"userId"`
	UserName   string         `json:"userName"`
	Kind       SectionKind    `json:"type"`
	Data       map[string]any `json:"data"`
	OccurredAt time.Time      `json:"occurredAt,omitempty"`
}
