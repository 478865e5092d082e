package domain

import (
	"strconv"
	"time"
)

// Notification types.
const (
	NotificationTypeNewOffer       = "new_offer"
	NotificationTypeOfferAccepted  = "offer_accepted"
	NotificationTypeOfferRejected  = "offer_rejected"
	NotificationTypeOfferCountered = "offer_countered"
	NotificationTypeNewMessage     = "new_message"
	NotificationTypeListingSold    = "listing_sold"
	NotificationTypeReminder       = "reminder"
)

// Push channel identifiers, derived from the notification type.
const (
	ChannelBids     = "bids"
	ChannelMessages = "messages"
	ChannelListings = "listings"
	ChannelGeneral  = "general"
)

// Notification is the durable in-app record of an event. It stays queryable
// by the recipient regardless of push delivery outcome.
type Notification struct {
	NotificationID string            `json:"id" dynamodbav:"notification_id"`
	UserID         string            `json:"user_id" dynamodbav:"user_id"`
	Type           string            `json:"type" dynamodbav:"notification_type"`
	Title          string            `json:"title" dynamodbav:"title"`
	Body           string            `json:"body" dynamodbav:"body"`
	Data           map[string]string `json:"data,omitempty" dynamodbav:"data"`
	Read           bool              `json:"read" dynamodbav:"read"`
	Sent           bool              `json:"sent" dynamodbav:"sent"`
	CreatedAt      time.Time         `json:"created" dynamodbav:"created_at"`
	ScheduledFor   *time.Time        `json:"scheduled_for,omitempty" dynamodbav:"scheduled_for"`
}

// Channel maps a notification type to its push channel.
func Channel(notificationType string) string {
	switch notificationType {
	case NotificationTypeNewOffer, NotificationTypeOfferAccepted,
		NotificationTypeOfferRejected, NotificationTypeOfferCountered:
		return ChannelBids
	case NotificationTypeNewMessage:
		return ChannelMessages
	case NotificationTypeListingSold:
		return ChannelListings
	default:
		return ChannelGeneral
	}
}

// Payload is the typed form of Notification.Data. Each notification type has
// its own payload struct; the opaque map form exists only at the storage and
// wire boundary.
type Payload interface {
	Kind() string
	Wire() map[string]string
}

// OfferPayload accompanies the offer lifecycle notification types.
type OfferPayload struct {
	OfferID   string
	ListingID string
	Amount    float64
}

func (p OfferPayload) Kind() string { return "offer" }

func (p OfferPayload) Wire() map[string]string {
	return map[string]string{
		"offer_id":   p.OfferID,
		"listing_id": p.ListingID,
		"amount":     strconv.FormatFloat(p.Amount, 'f', 2, 64),
	}
}

// MessagePayload accompanies new_message notifications.
type MessagePayload struct {
	SenderID  string
	ListingID string
}

func (p MessagePayload) Kind() string { return "message" }

func (p MessagePayload) Wire() map[string]string {
	m := map[string]string{"sender_id": p.SenderID}
	if p.ListingID != "" {
		m["listing_id"] = p.ListingID
	}
	return m
}

// ListingPayload accompanies listing_sold notifications.
type ListingPayload struct {
	ListingID  string
	FinalPrice float64
}

func (p ListingPayload) Kind() string { return "listing" }

func (p ListingPayload) Wire() map[string]string {
	return map[string]string{
		"listing_id":  p.ListingID,
		"final_price": strconv.FormatFloat(p.FinalPrice, 'f', 2, 64),
	}
}

type MarkReadRequest struct {
	NotificationIDs []string `json:"notification_ids" validate:"required,min=1,dive,required"`
}
