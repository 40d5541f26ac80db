// Package kb is the clinic's internal knowledge base: policies, protocols,
// and how-to articles for staff.
package kb

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
	// ErrMissingTitle is returned when an article has no title.
	ErrMissingTitle = errors.New("title is required")

	// ErrNotFound is returned when an article does not exist.
	ErrNotFound = errors.New("article not found")
)

// Article is one knowledge base entry.
type Article struct {
	ID        string    `dynamodbav:"id" json:"id"`
	Title     string    `dynamodbav:"title" json:"title"`
	Category  string    `dynamodbav:"category,omitempty" json:"category,omitempty"`
	Body      string    `dynamodbav:"body" json:"body"`
	Tags      []string  `dynamodbav:"tags,omitempty" json:"tags,omitempty"`
	CreatedBy string    `dynamodbav:"createdBy,omitempty" json:"createdBy,omitempty"`
	CreatedAt time.Time `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `dynamodbav:"updatedAt" json:"updatedAt"`
}

// Repository persists articles.
type Repository interface {
	Put(ctx context.Context, a *Article) error
	GetByID(ctx context.Context, id string) (*Article, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Article, error)
}

// InMemoryRepository keeps articles in a map for local runs and tests.
type InMemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*Article
}

var _ Repository = (*InMemoryRepository)(nil)

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{items: make(map[string]*Article)}
}

func (r *InMemoryRepository) Put(ctx context.Context, a *Article) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.items[a.ID] = &cp
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Article, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
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

func (r *InMemoryRepository) List(ctx context.Context) ([]Article, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Article, 0, len(r.items))
	for _, a := range r.items {
		out = append(out, *a)
	}
	sortByTitle(out)
	return out, nil
}

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoRepository stores articles in the knowledge base collection.
type DynamoRepository struct {
	client    dynamoAPI
	tableName string
}

var _ Repository = (*DynamoRepository)(nil)

func NewDynamoRepository(client dynamoAPI, tableName string) *DynamoRepository {
	if client == nil {
		panic("kb: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("kb: table name cannot be empty")
	}
	return &DynamoRepository{client: client, tableName: tableName}
}

func (r *DynamoRepository) Put(ctx context.Context, a *Article) error {
	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return fmt.Errorf("kb: marshal: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("kb: put: %w", err)
	}
	return nil
}

func (r *DynamoRepository) GetByID(ctx context.Context, id string) (*Article, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("kb: get: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var a Article
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, fmt.Errorf("kb: unmarshal: %w", err)
	}
	return &a, nil
}

func (r *DynamoRepository) Delete(ctx context.Context, id string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return fmt.Errorf("kb: delete: %w", err)
	}
	return nil
}

func (r *DynamoRepository) List(ctx context.Context) ([]Article, error) {
	input := &dynamodb.ScanInput{TableName: aws.String(r.tableName)}
	var out []Article
	for {
		page, err := r.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("kb: scan: %w", err)
		}
		var batch []Article
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("kb: unmarshal page: %w", err)
		}
		out = append(out, batch...)
		if page.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
	sortByTitle(out)
	return out, nil
}

func sortByTitle(items []Article) {
	sort.Slice(items, func(i, j int) bool {
		return strings.ToLower(items[i].Title) < strings.ToLower(items[j].Title)
	})
}
