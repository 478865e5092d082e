package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/offerhub-api/internal/domain"
)

// PushTokenRepo provides typed DynamoDB operations for the push_tokens table.
type PushTokenRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewPushTokenRepo(client *dynamodb.Client, tableName string) *PushTokenRepo {
	return &PushTokenRepo{client: client, tableName: tableName}
}

func (r *PushTokenRepo) Put(ctx context.Context, t *domain.PushToken) error {
	item, err := attributevalue.MarshalMap(t)
	if err != nil {
		return fmt.Errorf("marshal push token: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// GetByToken resolves a token value to its row via the token GSI.
func (r *PushTokenRepo) GetByToken(ctx context.Context, token string) (*domain.PushToken, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("token-index"),
		KeyConditionExpression: aws.String("#tk = :t"),
		ExpressionAttributeNames: map[string]string{
			"#tk": "token",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberS{Value: token},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("push token: %w", domain.ErrNotFound)
	}
	var t domain.PushToken
	if err := attributevalue.UnmarshalMap(out.Items[0], &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetByUserAndToken enforces the (user_id, token) uniqueness contract.
func (r *PushTokenRepo) GetByUserAndToken(ctx context.Context, userID, token string) (*domain.PushToken, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("token-index"),
		KeyConditionExpression: aws.String("#tk = :t"),
		FilterExpression:       aws.String("user_id = :uid"),
		ExpressionAttributeNames: map[string]string{
			"#tk": "token",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t":   &types.AttributeValueMemberS{Value: token},
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("push token: %w", domain.ErrNotFound)
	}
	var t domain.PushToken
	if err := attributevalue.UnmarshalMap(out.Items[0], &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListActiveByUser returns the user's active tokens for fan-out.
func (r *PushTokenRepo) ListActiveByUser(ctx context.Context, userID string) ([]domain.PushToken, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("user_id-index"),
		KeyConditionExpression: aws.String("user_id = :uid"),
		FilterExpression:       aws.String("is_active = :t"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
			":t":   &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	if err != nil {
		return nil, err
	}
	var tokens []domain.PushToken
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

func (r *PushTokenRepo) Update(ctx context.Context, tokenID string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("token_id", tokenID),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return err
}

// Deactivate flips is_active off; the row is retained for audit.
func (r *PushTokenRepo) Deactivate(ctx context.Context, token string) error {
	t, err := r.GetByToken(ctx, token)
	if err != nil {
		return err
	}
	return r.Update(ctx, t.TokenID, map[string]interface{}{"is_active": false})
}
