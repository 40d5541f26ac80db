package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoRepository stores appointments in the appointments collection.
type DynamoRepository struct {
	client    dynamoAPI
	tableName string
}

var _ Repository = (*DynamoRepository)(nil)

// NewDynamoRepository builds a repository backed by the provided DynamoDB client.
func NewDynamoRepository(client dynamoAPI, tableName string) *DynamoRepository {
	if client == nil {
		panic("appointments: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("appointments: table name cannot be empty")
	}
	return &DynamoRepository{client: client, tableName: tableName}
}

func (r *DynamoRepository) Create(ctx context.Context, a *Appointment) error {
	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return fmt.Errorf("appointments: marshal: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("appointments: put: %w", err)
	}
	return nil
}

func (r *DynamoRepository) GetByID(ctx context.Context, id string) (*Appointment, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       idKey(id),
	})
	if err != nil {
		return nil, fmt.Errorf("appointments: get: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var a Appointment
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, fmt.Errorf("appointments: unmarshal: %w", err)
	}
	return &a, nil
}

// Update overwrites the stored record. Last write wins; there is no version
// check.
func (r *DynamoRepository) Update(ctx context.Context, a *Appointment) error {
	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return fmt.Errorf("appointments: marshal: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("appointments: update: %w", err)
	}
	return nil
}

func (r *DynamoRepository) Delete(ctx context.Context, id string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       idKey(id),
	})
	if err != nil {
		return fmt.Errorf("appointments: delete: %w", err)
	}
	return nil
}

func (r *DynamoRepository) ListByClinician(ctx context.Context, clinicianID string, from, to time.Time) ([]Appointment, error) {
	lo, hi := rangeBounds(from, to)
	input := &dynamodb.ScanInput{
		TableName:        aws.String(r.tableName),
		FilterExpression: aws.String("clinicianId = :c AND dateOfSession BETWEEN :from AND :to"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c":    &types.AttributeValueMemberS{Value: clinicianID},
			":from": &types.AttributeValueMemberS{Value: lo},
			":to":   &types.AttributeValueMemberS{Value: hi},
		},
	}
	items, err := r.scanAll(ctx, input)
	if err != nil {
		return nil, err
	}
	return trimToRange(items, from, to), nil
}

func (r *DynamoRepository) ListByRange(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	lo, hi := rangeBounds(from, to)
	input := &dynamodb.ScanInput{
		TableName:        aws.String(r.tableName),
		FilterExpression: aws.String("dateOfSession BETWEEN :from AND :to"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":from": &types.AttributeValueMemberS{Value: lo},
			":to":   &types.AttributeValueMemberS{Value: hi},
		},
	}
	items, err := r.scanAll(ctx, input)
	if err != nil {
		return nil, err
	}
	return trimToRange(items, from, to), nil
}

// rangeBounds converts a time range into whole-second scan bounds, widened by
// one second on each side. DynamoDB compares the dateOfSession strings
// lexicographically, and fractional-second stamps do not sort chronologically
// against bare-second ones ("...T10:00:00.5Z" sorts before "...T10:00:00Z"),
// so the filter over-fetches and trimToRange compares the parsed times.
func rangeBounds(from, to time.Time) (string, string) {
	lo := from.UTC().Truncate(time.Second).Add(-time.Second)
	hi := to.UTC().Truncate(time.Second).Add(time.Second)
	return lo.Format(time.RFC3339), hi.Format(time.RFC3339)
}

func trimToRange(items []Appointment, from, to time.Time) []Appointment {
	out := items[:0]
	for _, a := range items {
		if a.StartAt.Before(from) || a.StartAt.After(to) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// SetCalendarEventIDs replaces the per-recipient calendar event ids on the
// record without touching other fields. An empty map clears them, which is
// how a cancelled record drops its mirrored events.
func (r *DynamoRepository) SetCalendarEventIDs(ctx context.Context, id string, eventIDs map[string]string) error {
	if len(eventIDs) == 0 {
		_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:           aws.String(r.tableName),
			Key:                 idKey(id),
			UpdateExpression:    aws.String("REMOVE calendarEventIds SET updatedAt = :now"),
			ConditionExpression: aws.String("attribute_exists(id)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":now": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
			},
		})
		if err != nil {
			return fmt.Errorf("appointments: clear event ids: %w", err)
		}
		return nil
	}
	ids, err := attributevalue.Marshal(eventIDs)
	if err != nil {
		return fmt.Errorf("appointments: marshal event ids: %w", err)
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 idKey(id),
		UpdateExpression:    aws.String("SET calendarEventIds = :ids, updatedAt = :now"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ids": ids,
			":now": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		return fmt.Errorf("appointments: set event ids: %w", err)
	}
	return nil
}

func (r *DynamoRepository) scanAll(ctx context.Context, input *dynamodb.ScanInput) ([]Appointment, error) {
	var out []Appointment
	for {
		page, err := r.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		var batch []Appointment
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("appointments: unmarshal page: %w", err)
		}
		out = append(out, batch...)
		if page.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
	sortByStart(out)
	return out, nil
}

func idKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}
