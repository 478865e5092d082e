package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/offerhub-api/internal/domain"
)

// QueueRepo provides typed DynamoDB operations for the queue_items table.
// It is the durability boundary between notification creation and push
// delivery: a transport outage degrades to in-app-only visibility, never to
// a lost event.
type QueueRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewQueueRepo(client *dynamodb.Client, tableName string) *QueueRepo {
	return &QueueRepo{client: client, tableName: tableName}
}

func (r *QueueRepo) Put(ctx context.Context, item *domain.QueueItem) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal queue item: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	})
	return err
}

func (r *QueueRepo) Get(ctx context.Context, itemID string) (*domain.QueueItem, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("item_id", itemID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("queue item %s: %w", itemID, domain.ErrNotFound)
	}
	var item domain.QueueItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// ListDue returns pending items whose next_attempt_at has passed, oldest first.
func (r *QueueRepo) ListDue(ctx context.Context, now time.Time, limit int32) ([]domain.QueueItem, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("queue_status-next_attempt_at-index"),
		KeyConditionExpression: aws.String("queue_status = :pending AND next_attempt_at <= :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pending": &types.AttributeValueMemberS{Value: domain.QueueStatusPending},
			":now":     &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Unix())},
		},
		Limit: aws.Int32(limit),
	})
	if err != nil {
		return nil, err
	}
	var items []domain.QueueItem
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Claim acquires the item's lease by compare-and-set: it succeeds only when
// no lease is held or the held lease has expired, so concurrent workers never
// double-process and a crashed worker's claim is reclaimed after expiry.
// Returns false when another worker holds a live lease.
func (r *QueueRepo) Claim(ctx context.Context, itemID, owner string, now time.Time, lease time.Duration) (bool, error) {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("item_id", itemID),
		UpdateExpression:    aws.String("SET lease_owner = :owner, lease_expires_at = :exp, updated_at = :now"),
		ConditionExpression: aws.String("queue_status = :pending AND (attribute_not_exists(lease_owner) OR lease_owner = :none OR lease_expires_at < :nowsec)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner":   &types.AttributeValueMemberS{Value: owner},
			":exp":     &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Add(lease).Unix())},
			":now":     &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339Nano)},
			":nowsec":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Unix())},
			":pending": &types.AttributeValueMemberS{Value: domain.QueueStatusPending},
			":none":    &types.AttributeValueMemberS{Value: ""},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MarkResolved moves the item to a terminal status and releases the lease.
func (r *QueueRepo) MarkResolved(ctx context.Context, itemID, status string) error {
	return r.update(ctx, itemID, map[string]interface{}{
		"queue_status": status,
		"lease_owner":  "",
	})
}

// Reschedule releases the lease and books the next attempt.
func (r *QueueRepo) Reschedule(ctx context.Context, itemID string, attemptCount int, nextAttempt time.Time, lastErr string) error {
	return r.update(ctx, itemID, map[string]interface{}{
		"attempt_count":    attemptCount,
		"next_attempt_at":  nextAttempt.Unix(),
		"last_error":       lastErr,
		"lease_owner":      "",
		"lease_expires_at": int64(0),
	})
}

// DeadLetter marks the item terminally failed; the notification row stays
// queryable, only push delivery gave up.
func (r *QueueRepo) DeadLetter(ctx context.Context, itemID, lastErr string) error {
	return r.update(ctx, itemID, map[string]interface{}{
		"queue_status": domain.QueueStatusDeadLetter,
		"last_error":   lastErr,
		"lease_owner":  "",
	})
}

func (r *QueueRepo) update(ctx context.Context, itemID string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("item_id", itemID),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return err
}
