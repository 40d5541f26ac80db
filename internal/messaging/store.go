package messaging

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Store persists threads and their messages.
type Store interface {
	CreateThread(ctx context.Context, t *Thread) error
	GetThread(ctx context.Context, id string) (*Thread, error)
	ListThreads(ctx context.Context, userID string) ([]Thread, error)
	TouchThread(ctx context.Context, t *Thread) error
	AddMessage(ctx context.Context, m *Message) error
	ListMessages(ctx context.Context, threadID string) ([]Message, error)
}

// InMemoryStore keeps threads and messages in maps for local runs and tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	threads  map[string]*Thread
	messages map[string][]Message
}

var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		threads:  make(map[string]*Thread),
		messages: make(map[string][]Message),
	}
}

func (s *InMemoryStore) CreateThread(ctx context.Context, t *Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.threads[t.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetThread(ctx context.Context, id string) (*Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[id]
	if !ok {
		return nil, ErrThreadNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *InMemoryStore) ListThreads(ctx context.Context, userID string) ([]Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Thread
	for _, t := range s.threads {
		if t.HasParticipant(userID) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out, nil
}

func (s *InMemoryStore) TouchThread(ctx context.Context, t *Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[t.ID]; !ok {
		return ErrThreadNotFound
	}
	cp := *t
	s.threads[t.ID] = &cp
	return nil
}

func (s *InMemoryStore) AddMessage(ctx context.Context, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.ThreadID] = append(s.messages[m.ThreadID], *m)
	return nil
}

func (s *InMemoryStore) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]Message(nil), s.messages[threadID]...)
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore keeps threads and messages in two collections.
type DynamoStore struct {
	client        dynamoAPI
	threadsTable  string
	messagesTable string
}

var _ Store = (*DynamoStore)(nil)

func NewDynamoStore(client dynamoAPI, threadsTable, messagesTable string) *DynamoStore {
	if client == nil {
		panic("messaging: dynamodb client cannot be nil")
	}
	if threadsTable == "" || messagesTable == "" {
		panic("messaging: table names cannot be empty")
	}
	return &DynamoStore{client: client, threadsTable: threadsTable, messagesTable: messagesTable}
}

func (s *DynamoStore) CreateThread(ctx context.Context, t *Thread) error {
	item, err := attributevalue.MarshalMap(t)
	if err != nil {
		return fmt.Errorf("messaging: marshal thread: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.threadsTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("messaging: put thread: %w", err)
	}
	return nil
}

func (s *DynamoStore) GetThread(ctx context.Context, id string) (*Thread, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.threadsTable),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("messaging: get thread: %w", err)
	}
	if out.Item == nil {
		return nil, ErrThreadNotFound
	}
	var t Thread
	if err := attributevalue.UnmarshalMap(out.Item, &t); err != nil {
		return nil, fmt.Errorf("messaging: unmarshal thread: %w", err)
	}
	return &t, nil
}

func (s *DynamoStore) ListThreads(ctx context.Context, userID string) ([]Thread, error) {
	input := &dynamodb.ScanInput{
		TableName:        aws.String(s.threadsTable),
		FilterExpression: aws.String("contains(participantIds, :u)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u": &types.AttributeValueMemberS{Value: userID},
		},
	}
	var out []Thread
	for {
		page, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("messaging: scan threads: %w", err)
		}
		var batch []Thread
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("messaging: unmarshal threads: %w", err)
		}
		out = append(out, batch...)
		if page.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out, nil
}

func (s *DynamoStore) TouchThread(ctx context.Context, t *Thread) error {
	item, err := attributevalue.MarshalMap(t)
	if err != nil {
		return fmt.Errorf("messaging: marshal thread: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.threadsTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("messaging: touch thread: %w", err)
	}
	return nil
}

func (s *DynamoStore) AddMessage(ctx context.Context, m *Message) error {
	item, err := attributevalue.MarshalMap(m)
	if err != nil {
		return fmt.Errorf("messaging: marshal message: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.messagesTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("messaging: put message: %w", err)
	}
	return nil
}

func (s *DynamoStore) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	input := &dynamodb.ScanInput{
		TableName:        aws.String(s.messagesTable),
		FilterExpression: aws.String("threadId = :t"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberS{Value: threadID},
		},
	}
	var out []Message
	for {
		page, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("messaging: scan messages: %w", err)
		}
		var batch []Message
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("messaging: unmarshal messages: %w", err)
		}
		out = append(out, batch...)
		if page.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
