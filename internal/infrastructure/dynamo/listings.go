package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/offerhub-api/internal/domain"
)

// ListingRepo provides typed DynamoDB operations for the listings table.
// Listings are owned by an external registry; this core reads them and the
// accept transaction writes the active→sold flip (see OfferRepo.Accept).
type ListingRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewListingRepo(client *dynamodb.Client, tableName string) *ListingRepo {
	return &ListingRepo{client: client, tableName: tableName}
}

func (r *ListingRepo) Put(ctx context.Context, l *domain.Listing) error {
	item, err := attributevalue.MarshalMap(l)
	if err != nil {
		return fmt.Errorf("marshal listing: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *ListingRepo) Get(ctx context.Context, listingID string) (*domain.Listing, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("listing_id", listingID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("listing %s: %w", listingID, domain.ErrNotFound)
	}
	var l domain.Listing
	if err := attributevalue.UnmarshalMap(out.Item, &l); err != nil {
		return nil, err
	}
	return &l, nil
}
