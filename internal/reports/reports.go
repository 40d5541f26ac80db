// Package reports manages progress reports and assessments written for a
// client over a period of care.
package reports

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	// ErrMissingClient is returned when no client is referenced.
	ErrMissingClient = errors.New("clientId is required")

	// ErrMissingTitle is returned when a report has no title.
	ErrMissingTitle = errors.New("title is required")

	// ErrNotFound is returned when a report does not exist.
	ErrNotFound = errors.New("report not found")
)

// Report is one progress report or assessment.
type Report struct {
	ID          string    `dynamodbav:"id" json:"id"`
	ClientID    string    `dynamodbav:"clientId" json:"clientId"`
	ClientName  string    `dynamodbav:"clientName,omitempty" json:"clientName,omitempty"`
	Title       string    `dynamodbav:"title" json:"title"`
	PeriodStart string    `dynamodbav:"periodStart,omitempty" json:"periodStart,omitempty"`
	PeriodEnd   string    `dynamodbav:"periodEnd,omitempty" json:"periodEnd,omitempty"`
	Summary     string    `dynamodbav:"summary" json:"summary"`
	Goals       []string  `dynamodbav:"goals,omitempty" json:"goals,omitempty"`
	CreatedBy   string    `dynamodbav:"createdBy,omitempty" json:"createdBy,omitempty"`
	CreatedAt   time.Time `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time `dynamodbav:"updatedAt" json:"updatedAt"`
}

// CreateRequest is the request body for a new report.
type CreateRequest struct {
	ClientID    string   `json:"clientId"`
	ClientName  string   `json:"clientName"`
	Title       string   `json:"title"`
	PeriodStart string   `json:"periodStart"`
	PeriodEnd   string   `json:"periodEnd"`
	Summary     string   `json:"summary"`
	Goals       []string `json:"goals"`
}

// Validate checks required fields.
func (r *CreateRequest) Validate() error {
	if strings.TrimSpace(r.ClientID) == "" {
		return ErrMissingClient
	}
	if strings.TrimSpace(r.Title) == "" {
		return ErrMissingTitle
	}
	return nil
}

// UpdateRequest carries mutable report fields.
type UpdateRequest struct {
	Title       string   `json:"title,omitempty"`
	PeriodStart string   `json:"periodStart,omitempty"`
	PeriodEnd   string   `json:"periodEnd,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	Goals       []string `json:"goals,omitempty"`
}

// Repository persists reports.
type Repository interface {
	Create(ctx context.Context, rp *Report) error
	GetByID(ctx context.Context, id string) (*Report, error)
	Update(ctx context.Context, rp *Report) error
	Delete(ctx context.Context, id string) error
	ListByClient(ctx context.Context, clientID string) ([]Report, error)
}

// InMemoryRepository keeps reports in a map for local runs and tests.
type InMemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*Report
}

var _ Repository = (*InMemoryRepository)(nil)

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{items: make(map[string]*Report)}
}

func (r *InMemoryRepository) Create(ctx context.Context, rp *Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rp
	r.items[rp.ID] = &cp
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rp, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rp
	return &cp, nil
}

func (r *InMemoryRepository) Update(ctx context.Context, rp *Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[rp.ID]; !ok {
		return ErrNotFound
	}
	cp := *rp
	r.items[rp.ID] = &cp
	return nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *InMemoryRepository) ListByClient(ctx context.Context, clientID string) ([]Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Report
	for _, rp := range r.items {
		if rp.ClientID == clientID {
			out = append(out, *rp)
		}
	}
	sortByCreated(out)
	return out, nil
}

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoRepository stores reports in the progress reports collection.
type DynamoRepository struct {
	client    dynamoAPI
	tableName string
}

var _ Repository = (*DynamoRepository)(nil)

func NewDynamoRepository(client dynamoAPI, tableName string) *DynamoRepository {
	if client == nil {
		panic("reports: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("reports: table name cannot be empty")
	}
	return &DynamoRepository{client: client, tableName: tableName}
}

func (r *DynamoRepository) Create(ctx context.Context, rp *Report) error {
	item, err := attributevalue.MarshalMap(rp)
	if err != nil {
		return fmt.Errorf("reports: marshal: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("reports: put: %w", err)
	}
	return nil
}

func (r *DynamoRepository) GetByID(ctx context.Context, id string) (*Report, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("reports: get: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var rp Report
	if err := attributevalue.UnmarshalMap(out.Item, &rp); err != nil {
		return nil, fmt.Errorf("reports: unmarshal: %w", err)
	}
	return &rp, nil
}

func (r *DynamoRepository) Update(ctx context.Context, rp *Report) error {
	item, err := attributevalue.MarshalMap(rp)
	if err != nil {
		return fmt.Errorf("reports: marshal: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("reports: update: %w", err)
	}
	return nil
}

func (r *DynamoRepository) Delete(ctx context.Context, id string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return fmt.Errorf("reports: delete: %w", err)
	}
	return nil
}

func (r *DynamoRepository) ListByClient(ctx context.Context, clientID string) ([]Report, error) {
	input := &dynamodb.ScanInput{
		TableName:        aws.String(r.tableName),
		FilterExpression: aws.String("clientId = :c"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c": &types.AttributeValueMemberS{Value: clientID},
		},
	}
	var out []Report
	for {
		page, err := r.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("reports: scan: %w", err)
		}
		var batch []Report
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("reports: unmarshal page: %w", err)
		}
		out = append(out, batch...)
		if page.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
	sortByCreated(out)
	return out, nil
}

func sortByCreated(items []Report) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
