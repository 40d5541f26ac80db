package appointments

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo mimics the byte-wise string comparison DynamoDB applies to a
// BETWEEN filter on a string attribute.
type fakeDynamo struct {
	items []map[string]types.AttributeValue
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.items = append(f.items, in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	vals := in.ExpressionAttributeValues
	from := vals[":from"].(*types.AttributeValueMemberS).Value
	to := vals[":to"].(*types.AttributeValueMemberS).Value
	var out []map[string]types.AttributeValue
	for _, item := range f.items {
		if c, ok := vals[":c"]; ok {
			clinician := item["clinicianId"].(*types.AttributeValueMemberS).Value
			if clinician != c.(*types.AttributeValueMemberS).Value {
				continue
			}
		}
		d := item["dateOfSession"].(*types.AttributeValueMemberS).Value
		if d < from || d > to {
			continue
		}
		out = append(out, item)
	}
	return &dynamodb.ScanOutput{Items: out}, nil
}

func seedAppointment(t *testing.T, db *fakeDynamo, id, clinicianID string, start time.Time) {
	t.Helper()
	item, err := attributevalue.MarshalMap(&Appointment{
		ID:              id,
		ClientID:        "client-1",
		ClinicianID:     clinicianID,
		Status:          StatusConfirmed,
		StartAt:         start,
		DurationMinutes: 60,
	})
	require.NoError(t, err)
	db.items = append(db.items, item)
}

func TestListByRangeFractionalSecondBoundary(t *testing.T) {
	db := &fakeDynamo{}
	repo := NewDynamoRepository(db, "appointments")

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	// A fractional-second stamp at the lower bound sorts before the bare
	// second form byte-wise, so it only survives a widened scan.
	seedAppointment(t, db, "a-frac", "clin-1", day.Add(10*time.Hour).Add(500*time.Millisecond))
	seedAppointment(t, db, "a-whole", "clin-1", day.Add(10*time.Hour+30*time.Minute))
	seedAppointment(t, db, "a-before", "clin-1", day.Add(10*time.Hour).Add(-200*time.Millisecond))
	seedAppointment(t, db, "a-after", "clin-1", day.Add(11*time.Hour).Add(300*time.Millisecond))

	got, err := repo.ListByRange(context.Background(), day.Add(10*time.Hour), day.Add(11*time.Hour))
	require.NoError(t, err)

	var ids []string
	for _, a := range got {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"a-frac", "a-whole"}, ids)
}

func TestListByClinicianFiltersAndTrims(t *testing.T) {
	db := &fakeDynamo{}
	repo := NewDynamoRepository(db, "appointments")

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	seedAppointment(t, db, "mine", "clin-1", day.Add(10*time.Hour).Add(900*time.Millisecond))
	seedAppointment(t, db, "theirs", "clin-2", day.Add(10*time.Hour+15*time.Minute))
	seedAppointment(t, db, "mine-late", "clin-1", day.Add(12*time.Hour))

	got, err := repo.ListByClinician(context.Background(), "clin-1", day.Add(10*time.Hour), day.Add(11*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "mine", got[0].ID)
}
