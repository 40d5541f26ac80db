package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ConnectionRepository stores per-user calendar OAuth connections.
type ConnectionRepository interface {
	Put(ctx context.Context, conn *Connection) error
	Get(ctx context.Context, userID string) (*Connection, error)
	List(ctx context.Context) ([]Connection, error)
	Delete(ctx context.Context, userID string) error
}

// InMemoryConnections is the in-memory ConnectionRepository used in tests.
type InMemoryConnections struct {
	mu    sync.RWMutex
	items map[string]*Connection
}

func NewInMemoryConnections() *InMemoryConnections {
	return &InMemoryConnections{items: make(map[string]*Connection)}
}

func (r *InMemoryConnections) Put(ctx context.Context, conn *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *conn
	r.items[conn.UserID] = &cp
	return nil
}

func (r *InMemoryConnections) Get(ctx context.Context, userID string) (*Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.items[userID]
	if !ok {
		return nil, ErrConnectionNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *InMemoryConnections) List(ctx context.Context) ([]Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Connection, 0, len(r.items))
	for _, c := range r.items {
		out = append(out, *c)
	}
	return out, nil
}

func (r *InMemoryConnections) Delete(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[userID]; !ok {
		return ErrConnectionNotFound
	}
	delete(r.items, userID)
	return nil
}

type connectionsDynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoConnections stores connections in the userCalendarConnections
// collection, keyed by user id.
type DynamoConnections struct {
	client    connectionsDynamoAPI
	tableName string
}

var _ ConnectionRepository = (*DynamoConnections)(nil)

func NewDynamoConnections(client connectionsDynamoAPI, tableName string) *DynamoConnections {
	if client == nil {
		panic("calendar: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("calendar: table name cannot be empty")
	}
	return &DynamoConnections{client: client, tableName: tableName}
}

// Put overwrites the user's connection. Concurrent refreshes of the same
// token are last-write-wins; there is no mutual exclusion.
func (r *DynamoConnections) Put(ctx context.Context, conn *Connection) error {
	conn.UpdatedAt = time.Now().UTC()
	item, err := attributevalue.MarshalMap(conn)
	if err != nil {
		return fmt.Errorf("calendar: marshal connection: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("calendar: put connection: %w", err)
	}
	return nil
}

func (r *DynamoConnections) Get(ctx context.Context, userID string) (*Connection, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"userId": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("calendar: get connection: %w", err)
	}
	if out.Item == nil {
		return nil, ErrConnectionNotFound
	}
	var conn Connection
	if err := attributevalue.UnmarshalMap(out.Item, &conn); err != nil {
		return nil, fmt.Errorf("calendar: unmarshal connection: %w", err)
	}
	return &conn, nil
}

func (r *DynamoConnections) List(ctx context.Context) ([]Connection, error) {
	var out []Connection
	input := &dynamodb.ScanInput{TableName: aws.String(r.tableName)}
	for {
		page, err := r.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("calendar: scan connections: %w", err)
		}
		var batch []Connection
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("calendar: unmarshal connections: %w", err)
		}
		out = append(out, batch...)
		if page.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
	return out, nil
}

func (r *DynamoConnections) Delete(ctx context.Context, userID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"userId": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return fmt.Errorf("calendar: delete connection: %w", err)
	}
	return nil
}
