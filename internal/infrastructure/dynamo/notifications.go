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

// NotificationRepo provides typed DynamoDB operations for the notifications
// table and its dedup companion table.
type NotificationRepo struct {
	client     *dynamodb.Client
	tableName  string
	dedupTable string
}

func NewNotificationRepo(client *dynamodb.Client, tableName, dedupTable string) *NotificationRepo {
	return &NotificationRepo{client: client, tableName: tableName, dedupTable: dedupTable}
}

func (r *NotificationRepo) Put(ctx context.Context, n *domain.Notification) error {
	item, err := attributevalue.MarshalMap(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *NotificationRepo) Get(ctx context.Context, notificationID string) (*domain.Notification, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("notification_id", notificationID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("notification %s: %w", notificationID, domain.ErrNotFound)
	}
	var n domain.Notification
	if err := attributevalue.UnmarshalMap(out.Item, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// ListSince queries the user_id-created_at GSI, newest first.
func (r *NotificationRepo) ListSince(ctx context.Context, userID string, since time.Time, limit int32) ([]domain.Notification, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("user_id-created_at-index"),
		KeyConditionExpression: aws.String("user_id = :uid AND created_at > :since"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid":   &types.AttributeValueMemberS{Value: userID},
			":since": &types.AttributeValueMemberS{Value: since.UTC().Format(time.RFC3339Nano)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(limit),
	})
	if err != nil {
		return nil, err
	}
	var notifications []domain.Notification
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *NotificationRepo) MarkRead(ctx context.Context, notificationID string) error {
	return r.update(ctx, notificationID, map[string]interface{}{"read": true})
}

// MarkSent flips the sent flag after the first successful transport delivery
// (or the in-app-only fallback).
func (r *NotificationRepo) MarkSent(ctx context.Context, notificationID string) error {
	return r.update(ctx, notificationID, map[string]interface{}{"sent": true})
}

func (r *NotificationRepo) update(ctx context.Context, notificationID string, updates map[string]interface{}) error {
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("notification_id", notificationID),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return err
}

// ClaimDedupe records the idempotency key for a generated notification. It
// returns false when the key was already claimed inside the dedup window,
// meaning the event is a duplicate and no row should be created. A stale
// claim (outside the window) is overwritten and counts as a fresh claim.
func (r *NotificationRepo) ClaimDedupe(ctx context.Context, key string, now time.Time, window time.Duration) (bool, error) {
	cutoff := now.Add(-window)
	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.dedupTable),
		Item: map[string]types.AttributeValue{
			"dedupe_key": &types.AttributeValueMemberS{Value: key},
			"created_at": &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339Nano)},
			// expires_at drives the table's TTL cleanup.
			"expires_at": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Add(window).Unix())},
		},
		ConditionExpression: aws.String("attribute_not_exists(dedupe_key) OR created_at < :cutoff"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cutoff": &types.AttributeValueMemberS{Value: cutoff.UTC().Format(time.RFC3339Nano)},
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
