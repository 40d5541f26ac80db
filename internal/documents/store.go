package documents

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// MappingStore persists client -> document mappings.
type MappingStore interface {
	Put(ctx context.Context, doc *ClientDocument) error
	Get(ctx context.Context, clientID string) (*ClientDocument, error)
}

// InMemoryMappings is an in-memory MappingStore for tests.
type InMemoryMappings struct {
	mu    sync.RWMutex
	items map[string]*ClientDocument
}

func NewInMemoryMappings() *InMemoryMappings {
	return &InMemoryMappings{items: make(map[string]*ClientDocument)}
}

func (s *InMemoryMappings) Put(ctx context.Context, doc *ClientDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *doc
	s.items[doc.ClientID] = &cp
	return nil
}

func (s *InMemoryMappings) Get(ctx context.Context, clientID string) (*ClientDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.items[clientID]
	if !ok {
		return nil, ErrMappingNotFound
	}
	cp := *doc
	return &cp, nil
}

type mappingsDynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// DynamoMappings stores mappings in the clientDocuments collection.
type DynamoMappings struct {
	client    mappingsDynamoAPI
	tableName string
}

var _ MappingStore = (*DynamoMappings)(nil)

func NewDynamoMappings(client mappingsDynamoAPI, tableName string) *DynamoMappings {
	if client == nil {
		panic("documents: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("documents: table name cannot be empty")
	}
	return &DynamoMappings{client: client, tableName: tableName}
}

func (s *DynamoMappings) Put(ctx context.Context, doc *ClientDocument) error {
	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return fmt.Errorf("documents: marshal mapping: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("documents: put mapping: %w", err)
	}
	return nil
}

func (s *DynamoMappings) Get(ctx context.Context, clientID string) (*ClientDocument, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"clientId": &types.AttributeValueMemberS{Value: clientID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("documents: get mapping: %w", err)
	}
	if out.Item == nil {
		return nil, ErrMappingNotFound
	}
	var doc ClientDocument
	if err := attributevalue.UnmarshalMap(out.Item, &doc); err != nil {
		return nil, fmt.Errorf("documents: unmarshal mapping: %w", err)
	}
	return &doc, nil
}
