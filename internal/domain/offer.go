package domain

import "time"

// Offer statuses. pending and countered are live; the rest are terminal.
const (
	OfferStatusPending   = "pending"
	OfferStatusAccepted  = "accepted"
	OfferStatusRejected  = "rejected"
	OfferStatusCountered = "countered"
	OfferStatusWithdrawn = "withdrawn"
	OfferStatusExpired   = "expired"
)

// Offer is a bidder's proposed price against a Listing.
// At most one offer per listing is ever in status accepted.
type Offer struct {
	OfferID        string    `json:"id" dynamodbav:"offer_id"`
	ListingID      string    `json:"listing_id" dynamodbav:"listing_id"`
	BidderID       string    `json:"bidder_id" dynamodbav:"bidder_id"`
	Amount         float64   `json:"amount" dynamodbav:"amount"`
	Message        string    `json:"message,omitempty" dynamodbav:"message"`
	Status         string    `json:"status" dynamodbav:"offer_status"`
	CounterAmount  *float64  `json:"counter_amount,omitempty" dynamodbav:"counter_amount"`
	CounterMessage *string   `json:"counter_message,omitempty" dynamodbav:"counter_message"`
	CreatedAt      time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt      time.Time `json:"updated" dynamodbav:"updated_at"`
}

// Live reports whether the offer can still transition (pending or countered).
func (o *Offer) Live() bool {
	return o.Status == OfferStatusPending || o.Status == OfferStatusCountered
}

type SubmitOfferRequest struct {
	ListingID string  `json:"listing_id" validate:"required"`
	Amount    float64 `json:"amount" validate:"required,gt=0"`
	Message   string  `json:"message"`
}

type CounterOfferRequest struct {
	CounterAmount  float64 `json:"counter_amount" validate:"required,gt=0"`
	CounterMessage string  `json:"counter_message"`
}

// AcceptTransaction describes the single atomic unit behind accepting an
// offer: the offer flips to accepted, the listing flips active→sold with the
// final price, and every live sibling offer flips to rejected. The listing
// status check is the condition that serializes racing accepts.
type AcceptTransaction struct {
	OfferID    string
	ListingID  string
	FinalPrice float64
	SiblingIDs []string
	Now        time.Time
}
