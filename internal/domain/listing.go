package domain

import "time"

// Listing statuses. Once sold, no offer on the listing may become accepted.
const (
	ListingStatusActive   = "active"
	ListingStatusSold     = "sold"
	ListingStatusInactive = "inactive"
)

// Listing is a sellable item whose lifecycle is gated by offer outcomes.
// Listings are created and curated elsewhere; this core reads status and
// writes the active→sold transition plus the final price.
type Listing struct {
	ListingID  string    `json:"id" dynamodbav:"listing_id"`
	SellerID   string    `json:"seller_id" dynamodbav:"seller_id"`
	Status     string    `json:"status" dynamodbav:"listing_status"`
	FinalPrice *float64  `json:"final_price,omitempty" dynamodbav:"final_price"`
	CreatedAt  time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt  time.Time `json:"updated" dynamodbav:"updated_at"`
}
