package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Store persists bookings.
type Store interface {
	Create(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id string) (*Booking, error)
	// UpdateStatus moves the booking to `to` when its current status is one of from.
	UpdateStatus(ctx context.Context, id string, from []Status, to Status) (*Booking, error)
}

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// Repository stores bookings in a DynamoDB table keyed by bookingId.
type Repository struct {
	client    dynamoAPI
	tableName string
	now       func() time.Time
}

var _ Store = (*Repository)(nil)

// NewRepository creates a repository backed by DynamoDB.
func NewRepository(client dynamoAPI, tableName string) *Repository {
	if client == nil {
		panic("bookings: dynamodb client required")
	}
	if tableName == "" {
		panic("bookings: table name required")
	}
	return &Repository{client: client, tableName: tableName, now: time.Now}
}

func (r *Repository) Create(ctx context.Context, b *Booking) error {
	if b == nil || b.ID == "" {
		return fmt.Errorf("%w: id required", ErrInvalidBooking)
	}
	now := r.now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	item, err := attributevalue.MarshalMap(b)
	if err != nil {
		return fmt.Errorf("bookings: marshal: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(bookingId)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrBookingExists
		}
		return fmt.Errorf("bookings: insert: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*Booking, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id required", ErrInvalidBooking)
	}
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"bookingId": &types.AttributeValueMemberS{Value: id},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("bookings: load: %w", err)
	}
	if out.Item == nil {
		return nil, ErrBookingNotFound
	}
	var b Booking
	if err := attributevalue.UnmarshalMap(out.Item, &b); err != nil {
		return nil, fmt.Errorf("bookings: decode: %w", err)
	}
	return &b, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id string, from []Status, to Status) (*Booking, error) {
	if id == "" || len(from) == 0 {
		return nil, fmt.Errorf("%w: id and source statuses required", ErrInvalidBooking)
	}
	values := map[string]types.AttributeValue{
		":to":      &types.AttributeValueMemberS{Value: string(to)},
		":updated": &types.AttributeValueMemberS{Value: r.now().UTC().Format(time.RFC3339Nano)},
	}
	placeholders := make([]string, 0, len(from))
	for i, s := range from {
		name := fmt.Sprintf(":from%d", i)
		values[name] = &types.AttributeValueMemberS{Value: string(s)}
		placeholders = append(placeholders, name)
	}

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"bookingId": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression:    aws.String("SET #status = :to, #updated = :updated"),
		ConditionExpression: aws.String(fmt.Sprintf("attribute_exists(bookingId) AND #status IN (%s)", strings.Join(placeholders, ", "))),
		ExpressionAttributeNames: map[string]string{
			"#status":  "status",
			"#updated": "updatedAt",
		},
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if !isConditionFailed(err) {
			return nil, fmt.Errorf("bookings: update status: %w", err)
		}
		if _, getErr := r.Get(ctx, id); errors.Is(getErr, ErrBookingNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("%w: cannot move to %s", ErrInvalidTransition, to)
	}

	var b Booking
	if err := attributevalue.UnmarshalMap(out.Attributes, &b); err != nil {
		return nil, fmt.Errorf("bookings: decode: %w", err)
	}
	return &b, nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// MemoryRepository keeps bookings in process memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	bookings map[string]Booking
	now      func() time.Time
}

var _ Store = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{bookings: make(map[string]Booking), now: time.Now}
}

func (m *MemoryRepository) Create(ctx context.Context, b *Booking) error {
	if b == nil || b.ID == "" {
		return fmt.Errorf("%w: id required", ErrInvalidBooking)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[b.ID]; ok {
		return ErrBookingExists
	}
	now := m.now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	m.bookings[b.ID] = *b
	return nil
}

func (m *MemoryRepository) Get(ctx context.Context, id string) (*Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return &b, nil
}

func (m *MemoryRepository) UpdateStatus(ctx context.Context, id string, from []Status, to Status) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	if !statusIn(b.Status, from) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, b.Status, to)
	}
	b.Status = to
	b.UpdatedAt = m.now().UTC()
	m.bookings[id] = b
	return &b, nil
}
