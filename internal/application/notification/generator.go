package notification

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/offerhub-api/internal/domain"
	"github.com/offerhub-api/internal/pkg/id"
)

type notificationStore interface {
	Put(ctx context.Context, n *domain.Notification) error
	ClaimDedupe(ctx context.Context, key string, now time.Time, window time.Duration) (bool, error)
}

type queueStore interface {
	Put(ctx context.Context, item *domain.QueueItem) error
}

// inAppOnly lists the notification types that never enqueue for push.
var inAppOnly = map[string]bool{
	domain.NotificationTypeReminder: true,
}

// Generator maps domain events to notification rows and queue items. It is
// the only writer of notifications: events arrive synchronously from the
// offer lifecycle engine or the message-event endpoint, and a duplicate
// event inside the dedup window produces no second row.
type Generator struct {
	notifications notificationStore
	queue         queueStore
	dedupWindow   time.Duration
	notifyLosers  bool
	log           *slog.Logger
	now           func() time.Time
}

type GeneratorConfig struct {
	DedupWindow         time.Duration
	NotifyLosingBidders bool
}

func NewGenerator(notifications notificationStore, queue queueStore, cfg GeneratorConfig, log *slog.Logger) *Generator {
	return &Generator{
		notifications: notifications,
		queue:         queue,
		dedupWindow:   cfg.DedupWindow,
		notifyLosers:  cfg.NotifyLosingBidders,
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (g *Generator) HandleEvent(ctx context.Context, e domain.Event) error {
	switch ev := e.(type) {
	case domain.OfferCreatedEvent:
		return g.create(ctx, ev.Listing.SellerID, domain.NotificationTypeNewOffer,
			"New offer received",
			fmt.Sprintf("You received an offer of %.2f on your listing", ev.Offer.Amount),
			domain.OfferPayload{OfferID: ev.Offer.OfferID, ListingID: ev.Listing.ListingID, Amount: ev.Offer.Amount},
			ev.Offer.OfferID)

	case domain.OfferAcceptedEvent:
		return g.create(ctx, ev.Offer.BidderID, domain.NotificationTypeOfferAccepted,
			"Offer accepted",
			fmt.Sprintf("Your offer of %.2f was accepted", ev.Offer.Amount),
			domain.OfferPayload{OfferID: ev.Offer.OfferID, ListingID: ev.Listing.ListingID, Amount: ev.Offer.Amount},
			ev.Offer.OfferID)

	case domain.OfferRejectedEvent:
		return g.create(ctx, ev.Offer.BidderID, domain.NotificationTypeOfferRejected,
			"Offer declined",
			fmt.Sprintf("Your offer of %.2f was declined", ev.Offer.Amount),
			domain.OfferPayload{OfferID: ev.Offer.OfferID, ListingID: ev.Listing.ListingID, Amount: ev.Offer.Amount},
			ev.Offer.OfferID)

	case domain.OfferCounteredEvent:
		amount := ev.Offer.Amount
		if ev.Offer.CounterAmount != nil {
			amount = *ev.Offer.CounterAmount
		}
		return g.create(ctx, ev.Offer.BidderID, domain.NotificationTypeOfferCountered,
			"Counter-offer received",
			fmt.Sprintf("The seller countered with %.2f", amount),
			domain.OfferPayload{OfferID: ev.Offer.OfferID, ListingID: ev.Listing.ListingID, Amount: amount},
			ev.Offer.OfferID)

	case domain.ListingSoldEvent:
		if !g.notifyLosers {
			return nil
		}
		for _, loserID := range ev.LoserIDs {
			err := g.create(ctx, loserID, domain.NotificationTypeListingSold,
				"Listing sold",
				"The listing you bid on has been sold",
				domain.ListingPayload{ListingID: ev.Listing.ListingID, FinalPrice: ev.FinalPrice},
				ev.Listing.ListingID)
			if err != nil {
				return err
			}
		}
		return nil

	case domain.NewMessageEvent:
		return g.create(ctx, ev.RecipientID, domain.NotificationTypeNewMessage,
			"New message",
			ev.Preview,
			domain.MessagePayload{SenderID: ev.SenderID, ListingID: ev.ListingID},
			ev.MessageID)

	default:
		g.log.Warn("unhandled event kind", "kind", e.EventKind())
		return nil
	}
}

// create writes one notification row and, unless the type is in-app-only,
// one pending queue item. The dedup claim comes first: a duplicate event
// inside the window produces nothing.
func (g *Generator) create(ctx context.Context, userID, ntype, title, body string, payload domain.Payload, entityID string) error {
	now := g.now()

	fresh, err := g.notifications.ClaimDedupe(ctx, dedupeKey(ntype, entityID, userID), now, g.dedupWindow)
	if err != nil {
		return fmt.Errorf("claim dedupe: %w", err)
	}
	if !fresh {
		return nil
	}

	n := &domain.Notification{
		NotificationID: id.New(),
		UserID:         userID,
		Type:           ntype,
		Title:          title,
		Body:           body,
		Data:           payload.Wire(),
		CreatedAt:      now,
	}
	if err := g.notifications.Put(ctx, n); err != nil {
		return fmt.Errorf("put notification: %w", err)
	}

	if inAppOnly[ntype] {
		return nil
	}
	item := &domain.QueueItem{
		ItemID:         id.New(),
		NotificationID: n.NotificationID,
		UserID:         userID,
		QueueStatus:    domain.QueueStatusPending,
		NextAttemptAt:  now.Unix(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := g.queue.Put(ctx, item); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// dedupeKey is the idempotency key: hash(event type, related entity, recipient).
func dedupeKey(ntype, entityID, userID string) string {
	sum := sha256.Sum256([]byte(ntype + "|" + entityID + "|" + userID))
	return hex.EncodeToString(sum[:])
}
