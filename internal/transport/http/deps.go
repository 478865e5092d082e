package http

import (
	"github.com/offerhub-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/offerhub-api/internal/infrastructure/jwt"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	OfferRepo        *dynamo.OfferRepo
	ListingRepo      *dynamo.ListingRepo
	NotificationRepo *dynamo.NotificationRepo
	PushTokenRepo    *dynamo.PushTokenRepo
	QueueRepo        *dynamo.QueueRepo
	JWTProvider      *jwtinfra.Provider
}
