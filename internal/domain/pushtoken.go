package domain

import "time"

// Push token platforms.
const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
	PlatformWeb     = "web"
)

// PushToken is one device delivery endpoint for a user. A user owns zero to
// many active tokens; (user_id, token) is unique. Deactivated tokens are
// retained for audit and excluded from fan-out.
type PushToken struct {
	TokenID    string    `json:"id" dynamodbav:"token_id"`
	UserID     string    `json:"user_id" dynamodbav:"user_id"`
	Token      string    `json:"-" dynamodbav:"token"`
	Platform   string    `json:"platform" dynamodbav:"platform"`
	DeviceName string    `json:"device_name" dynamodbav:"device_name"`
	IsActive   bool      `json:"is_active" dynamodbav:"is_active"`
	CreatedAt  time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt  time.Time `json:"updated" dynamodbav:"updated_at"`
}

type UpsertPushTokenRequest struct {
	Token      string `json:"token" validate:"required"`
	Platform   string `json:"platform" validate:"required,oneof=ios android web"`
	DeviceName string `json:"device_name"`
}
