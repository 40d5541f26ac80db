// Package compliance provides the audit trail for clinical record mutations.
package compliance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"

	"github.com/brightkind/clinic-platform/internal/auth"
	"github.com/brightkind/clinic-platform/pkg/logging"
)

// Action is the kind of mutation being audited.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// AuditEvent is an immutable record of one mutation.
type AuditEvent struct {
	ID             string    `dynamodbav:"id" json:"id"`
	Action         Action    `dynamodbav:"action" json:"action"`
	RecordType     string    `dynamodbav:"recordType" json:"recordType"`
	RecordID       string    `dynamodbav:"recordId" json:"recordId"`
	ActorID        string    `dynamodbav:"actorId" json:"actorId"`
	ActorName      string    `dynamodbav:"actorName,omitempty" json:"actorName,omitempty"`
	ImpersonatedBy string    `dynamodbav:"impersonatedBy,omitempty" json:"impersonatedBy,omitempty"`
	Detail         string    `dynamodbav:"detail,omitempty" json:"detail,omitempty"`
	CreatedAt      time.Time `dynamodbav:"createdAt" json:"createdAt"`
}

// EventStore persists audit events.
type EventStore interface {
	Put(ctx context.Context, ev *AuditEvent) error
}

// InMemoryEvents collects events in memory for tests.
type InMemoryEvents struct {
	mu     sync.Mutex
	Events []AuditEvent
}

func NewInMemoryEvents() *InMemoryEvents {
	return &InMemoryEvents{}
}

func (s *InMemoryEvents) Put(ctx context.Context, ev *AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, *ev)
	return nil
}

type auditDynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoEvents stores audit events in the auditEvents collection.
type DynamoEvents struct {
	client    auditDynamoAPI
	tableName string
}

var _ EventStore = (*DynamoEvents)(nil)

func NewDynamoEvents(client auditDynamoAPI, tableName string) *DynamoEvents {
	if client == nil {
		panic("compliance: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("compliance: table name cannot be empty")
	}
	return &DynamoEvents{client: client, tableName: tableName}
}

func (s *DynamoEvents) Put(ctx context.Context, ev *AuditEvent) error {
	item, err := attributevalue.MarshalMap(ev)
	if err != nil {
		return fmt.Errorf("compliance: marshal event: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("compliance: put event: %w", err)
	}
	return nil
}

// AuditService records mutations. Recording is best effort; an audit write
// failure never fails the mutation it describes.
type AuditService struct {
	store  EventStore
	logger *logging.Logger
}

func NewAuditService(store EventStore, logger *logging.Logger) *AuditService {
	if logger == nil {
		logger = logging.Default()
	}
	return &AuditService{store: store, logger: logger}
}

// Record writes one audit event using the caller identity from ctx.
func (s *AuditService) Record(ctx context.Context, action Action, recordType, recordID, detail string) {
	if s == nil || s.store == nil {
		return
	}
	ev := &AuditEvent{
		ID:         uuid.NewString(),
		Action:     action,
		RecordType: recordType,
		RecordID:   recordID,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}
	if id, ok := auth.IdentityFromContext(ctx); ok {
		ev.ActorID = id.UserID
		ev.ActorName = id.Name
		ev.ImpersonatedBy = id.ImpersonatedBy
	}
	if err := s.store.Put(ctx, ev); err != nil {
		s.logger.Warn("audit event write failed",
			"action", action, "record_type", recordType, "record_id", recordID, "error", err)
	}
}
