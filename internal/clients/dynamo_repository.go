package clients

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

// DynamoRepository stores clients in the clients collection.
type DynamoRepository struct {
	client    dynamoAPI
	tableName string
}

var _ Repository = (*DynamoRepository)(nil)

func NewDynamoRepository(client dynamoAPI, tableName string) *DynamoRepository {
	if client == nil {
		panic("clients: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("clients: table name cannot be empty")
	}
	return &DynamoRepository{client: client, tableName: tableName}
}

func (r *DynamoRepository) Create(ctx context.Context, c *Client) error {
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("clients: marshal: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("clients: put: %w", err)
	}
	return nil
}

func (r *DynamoRepository) GetByID(ctx context.Context, id string) (*Client, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       idKey(id),
	})
	if err != nil {
		return nil, fmt.Errorf("clients: get: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var c Client
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, fmt.Errorf("clients: unmarshal: %w", err)
	}
	return &c, nil
}

// Update overwrites the stored record. Last write wins.
func (r *DynamoRepository) Update(ctx context.Context, c *Client) error {
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("clients: marshal: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("clients: update: %w", err)
	}
	return nil
}

func (r *DynamoRepository) Delete(ctx context.Context, id string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       idKey(id),
	})
	if err != nil {
		return fmt.Errorf("clients: delete: %w", err)
	}
	return nil
}

func (r *DynamoRepository) List(ctx context.Context) ([]Client, error) {
	return r.scanAll(ctx, &dynamodb.ScanInput{
		TableName: aws.String(r.tableName),
	})
}

// ListByClinician filters on the lead clinician or team membership.
func (r *DynamoRepository) ListByClinician(ctx context.Context, clinicianID string) ([]Client, error) {
	return r.scanAll(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(r.tableName),
		FilterExpression: aws.String("primaryClinicianId = :c OR contains(teamClinicianIds, :c)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c": &types.AttributeValueMemberS{Value: clinicianID},
		},
	})
}

// SetDocument records the client's generated document without touching other
// fields.
func (r *DynamoRepository) SetDocument(ctx context.Context, id, documentID, documentURL string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 idKey(id),
		UpdateExpression:    aws.String("SET documentId = :doc, documentUrl = :url, updatedAt = :now"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":doc": &types.AttributeValueMemberS{Value: documentID},
			":url": &types.AttributeValueMemberS{Value: documentURL},
			":now": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		return fmt.Errorf("clients: set document: %w", err)
	}
	return nil
}

func (r *DynamoRepository) scanAll(ctx context.Context, input *dynamodb.ScanInput) ([]Client, error) {
	var out []Client
	for {
		page, err := r.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("clients: scan: %w", err)
		}
		var batch []Client
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("clients: unmarshal page: %w", err)
		}
		out = append(out, batch...)
		if page.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
	sortByName(out)
	return out, nil
}

func idKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}
