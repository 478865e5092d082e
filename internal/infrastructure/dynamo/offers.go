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

// OfferRepo provides typed DynamoDB operations for the offers table.
type OfferRepo struct {
	client        *dynamodb.Client
	tableName     string
	listingsTable string
}

func NewOfferRepo(client *dynamodb.Client, tableName, listingsTable string) *OfferRepo {
	return &OfferRepo{client: client, tableName: tableName, listingsTable: listingsTable}
}

func (r *OfferRepo) Put(ctx context.Context, o *domain.Offer) error {
	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		return fmt.Errorf("marshal offer: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *OfferRepo) Get(ctx context.Context, offerID string) (*domain.Offer, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("offer_id", offerID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("offer %s: %w", offerID, domain.ErrNotFound)
	}
	var o domain.Offer
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// ListByListing queries the listing_id GSI and returns every offer on the listing.
func (r *OfferRepo) ListByListing(ctx context.Context, listingID string) ([]domain.Offer, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("listing_id-index"),
		KeyConditionExpression: aws.String("listing_id = :lid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":lid": &types.AttributeValueMemberS{Value: listingID},
		},
	})
	if err != nil {
		return nil, err
	}
	var offers []domain.Offer
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &offers); err != nil {
		return nil, err
	}
	return offers, nil
}

// ListStale returns offers in the given status created before cutoff,
// via the offer_status-created_at GSI.
func (r *OfferRepo) ListStale(ctx context.Context, status string, cutoff time.Time, limit int32) ([]domain.Offer, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("offer_status-created_at-index"),
		KeyConditionExpression: aws.String("offer_status = :st AND created_at < :cutoff"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":st":     &types.AttributeValueMemberS{Value: status},
			":cutoff": &types.AttributeValueMemberS{Value: cutoff.UTC().Format(time.RFC3339Nano)},
		},
		Limit: aws.Int32(limit),
	})
	if err != nil {
		return nil, err
	}
	var offers []domain.Offer
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &offers); err != nil {
		return nil, err
	}
	return offers, nil
}

// UpdateStatus transitions an offer to a new status, conditioned on the
// current status being one of allowedFrom. A condition failure means the
// offer moved underneath the caller and surfaces as domain.ErrState.
func (r *OfferRepo) UpdateStatus(ctx context.Context, offerID, newStatus string, allowedFrom []string, extra map[string]interface{}) error {
	updates := map[string]interface{}{
		"offer_status": newStatus,
		"updated_at":   time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range extra {
		updates[k] = v
	}
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}

	cond, names, values := statusCondition(allowedFrom)
	for k, v := range names {
		ue.Names[k] = v
	}
	for k, v := range values {
		ue.Values[k] = v
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("offer_id", offerID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("offer %s is not in %v: %w", offerID, allowedFrom, domain.ErrState)
		}
		return err
	}
	return nil
}

// Accept commits the three-part accept effect as a single TransactWriteItems
// call: the listing flips active→sold (this condition is the serialization
// point for racing accepts), the target offer flips to accepted, and every
// live sibling flips to rejected. A cancelled transaction surfaces as
// domain.ErrState with zero mutations.
func (r *OfferRepo) Accept(ctx context.Context, t domain.AcceptTransaction) error {
	now := t.Now.UTC().Format(time.RFC3339Nano)
	price, err := attributevalue.Marshal(t.FinalPrice)
	if err != nil {
		return fmt.Errorf("marshal final price: %w", err)
	}

	items := []types.TransactWriteItem{
		{
			Update: &types.Update{
				TableName:           aws.String(r.listingsTable),
				Key:                 strKey("listing_id", t.ListingID),
				UpdateExpression:    aws.String("SET listing_status = :sold, final_price = :price, updated_at = :now"),
				ConditionExpression: aws.String("listing_status = :active"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":sold":   &types.AttributeValueMemberS{Value: domain.ListingStatusSold},
					":active": &types.AttributeValueMemberS{Value: domain.ListingStatusActive},
					":price":  price,
					":now":    &types.AttributeValueMemberS{Value: now},
				},
			},
		},
		{
			Update: &types.Update{
				TableName:           aws.String(r.tableName),
				Key:                 strKey("offer_id", t.OfferID),
				UpdateExpression:    aws.String("SET offer_status = :accepted, updated_at = :now"),
				ConditionExpression: aws.String("offer_status = :pending OR offer_status = :countered"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":accepted":  &types.AttributeValueMemberS{Value: domain.OfferStatusAccepted},
					":pending":   &types.AttributeValueMemberS{Value: domain.OfferStatusPending},
					":countered": &types.AttributeValueMemberS{Value: domain.OfferStatusCountered},
					":now":       &types.AttributeValueMemberS{Value: now},
				},
			},
		},
	}

	// Siblings are conditioned on existence only: a sibling withdrawn in the
	// race window must not abort the accept.
	for _, sibID := range t.SiblingIDs {
		items = append(items, types.TransactWriteItem{
			Update: &types.Update{
				TableName:           aws.String(r.tableName),
				Key:                 strKey("offer_id", sibID),
				UpdateExpression:    aws.String("SET offer_status = :rejected, updated_at = :now"),
				ConditionExpression: aws.String("attribute_exists(offer_id)"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":rejected": &types.AttributeValueMemberS{Value: domain.OfferStatusRejected},
					":now":      &types.AttributeValueMemberS{Value: now},
				},
			},
		})
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return fmt.Errorf("accept offer %s: listing no longer active: %w", t.OfferID, domain.ErrState)
		}
		return err
	}
	return nil
}

// statusCondition builds "#st = :s0 OR #st = :s1 …" over offer_status.
func statusCondition(allowed []string) (string, map[string]string, map[string]types.AttributeValue) {
	names := map[string]string{"#st": "offer_status"}
	values := map[string]types.AttributeValue{}
	cond := ""
	for i, st := range allowed {
		key := fmt.Sprintf(":s%d", i)
		values[key] = &types.AttributeValueMemberS{Value: st}
		if i > 0 {
			cond += " OR "
		}
		cond += fmt.Sprintf("#st = %s", key)
	}
	return cond, names, values
}
