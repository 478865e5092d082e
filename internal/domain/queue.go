package domain

import "time"

// Queue item statuses. pending items are claimable; the rest are terminal.
const (
	QueueStatusPending        = "pending"
	QueueStatusDelivered      = "delivered"
	QueueStatusDeliveredInApp = "delivered_in_app"
	QueueStatusDeadLetter     = "dead_letter"
)

// QueueItem wraps one notification pending push delivery. Per-item
// exclusivity across dispatcher workers is a time-bounded lease
// (lease_owner + lease_expires_at) acquired by compare-and-set; an expired
// lease is claimable again, so a crashed worker never stalls the item.
type QueueItem struct {
	ItemID         string    `json:"id" dynamodbav:"item_id"`
	NotificationID string    `json:"notification_id" dynamodbav:"notification_id"`
	UserID         string    `json:"user_id" dynamodbav:"user_id"`
	QueueStatus    string    `json:"status" dynamodbav:"queue_status"`
	AttemptCount   int       `json:"attempt_count" dynamodbav:"attempt_count"`
	NextAttemptAt  int64     `json:"next_attempt_at" dynamodbav:"next_attempt_at"`
	LastError      string    `json:"last_error,omitempty" dynamodbav:"last_error"`
	LeaseOwner     string    `json:"-" dynamodbav:"lease_owner"`
	LeaseExpiresAt int64     `json:"-" dynamodbav:"lease_expires_at"`
	CreatedAt      time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt      time.Time `json:"updated" dynamodbav:"updated_at"`
}
