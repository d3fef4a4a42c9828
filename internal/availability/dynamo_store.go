package availability

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/wolfman30/kalos-marketplace/pkg/logging"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore persists records in a DynamoDB table keyed by
// professionalId (partition) and date (sort).
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
	now       func() time.Time
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore builds a store backed by the provided DynamoDB client.
func NewDynamoStore(client dynamoAPI, tableName string, logger *logging.Logger) *DynamoStore {
	if client == nil {
		panic("availability: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("availability: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *DynamoStore) Get(ctx context.Context, professionalID, date string) (*Record, error) {
	if professionalID == "" || date == "" {
		return nil, fmt.Errorf("%w: professional id and date required", ErrInvalidRequest)
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            recordKey(professionalID, date),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("availability: failed to fetch record: %w", err)
	}
	if out.Item == nil {
		return nil, ErrRecordNotFound
	}
	return decodeRecord(out.Item)
}

func (s *DynamoStore) Create(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("%w: record cannot be nil", ErrInvalidRequest)
	}
	now := s.now().UTC()
	rec.Version = 1
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.Normalize()

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("availability: failed to marshal record: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(professionalId)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrRecordExists
		}
		return fmt.Errorf("availability: failed to create record: %w", err)
	}
	return nil
}

func (s *DynamoStore) Replace(ctx context.Context, rec *Record, expectedVersion int64) error {
	if rec == nil {
		return fmt.Errorf("%w: record cannot be nil", ErrInvalidRequest)
	}
	next := rec.Clone()
	next.Version = expectedVersion + 1
	next.UpdatedAt = s.now().UTC()
	next.Normalize()

	item, err := attributevalue.MarshalMap(next)
	if err != nil {
		return fmt.Errorf("availability: failed to marshal record: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(professionalId) AND #version = :expected"),
		ExpressionAttributeNames: map[string]string{
			"#version": "version",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(expectedVersion, 10)},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrConflict
		}
		return fmt.Errorf("availability: failed to replace record: %w", err)
	}
	rec.Version = next.Version
	rec.UpdatedAt = next.UpdatedAt
	rec.Normalize()
	return nil
}

func (s *DynamoStore) Range(ctx context.Context, professionalID, startDate, endDate string) ([]*Record, error) {
	if professionalID == "" {
		return nil, fmt.Errorf("%w: professional id required", ErrInvalidRequest)
	}
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("professionalId = :pid AND #date BETWEEN :start AND :end"),
		ExpressionAttributeNames: map[string]string{
			"#date": "date",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pid":   &types.AttributeValueMemberS{Value: professionalID},
			":start": &types.AttributeValueMemberS{Value: startDate},
			":end":   &types.AttributeValueMemberS{Value: endDate},
		},
		ConsistentRead:   aws.Bool(true),
		ScanIndexForward: aws.Bool(true),
	}

	var records []*Record
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("availability: failed to query records: %w", err)
		}
		for _, item := range out.Items {
			rec, err := decodeRecord(item)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	s.logger.Debug("availability range loaded", "professional_id", professionalID, "start", startDate, "end", endDate, "count", len(records))
	return records, nil
}

func recordKey(professionalID, date string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"professionalId": &types.AttributeValueMemberS{Value: professionalID},
		"date":           &types.AttributeValueMemberS{Value: date},
	}
}

func decodeRecord(item map[string]types.AttributeValue) (*Record, error) {
	var rec Record
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, fmt.Errorf("availability: failed to decode record: %w", err)
	}
	rec.Normalize()
	return &rec, nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
