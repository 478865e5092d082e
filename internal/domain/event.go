package domain

// Domain event kinds.
const (
	EventOfferCreated   = "offer_created"
	EventOfferAccepted  = "offer_accepted"
	EventOfferRejected  = "offer_rejected"
	EventOfferCountered = "offer_countered"
	EventListingSold    = "listing_sold"
	EventNewMessage     = "new_message"
)

// Event is a domain event emitted by the offer lifecycle engine (or ingested
// from the chat subsystem) after the corresponding store commit. Events are
// consumed synchronously, in emission order, by the notification generator —
// never by storage-layer triggers.
type Event interface {
	EventKind() string
}

type OfferCreatedEvent struct {
	Offer   Offer
	Listing Listing
}

func (OfferCreatedEvent) EventKind() string { return EventOfferCreated }

type OfferAcceptedEvent struct {
	Offer   Offer
	Listing Listing
}

func (OfferAcceptedEvent) EventKind() string { return EventOfferAccepted }

type OfferRejectedEvent struct {
	Offer   Offer
	Listing Listing
}

func (OfferRejectedEvent) EventKind() string { return EventOfferRejected }

type OfferCounteredEvent struct {
	Offer   Offer
	Listing Listing
}

func (OfferCounteredEvent) EventKind() string { return EventOfferCountered }

// ListingSoldEvent carries the losing bidders so the generator can fan out
// to them when the losing-bidder policy is enabled.
type ListingSoldEvent struct {
	Listing    Listing
	WinnerID   string
	FinalPrice float64
	LoserIDs   []string
}

func (ListingSoldEvent) EventKind() string { return EventListingSold }

// NewMessageEvent is emitted by the external chat subsystem; only the fact of
// a new message is consumed here, never the transcript.
type NewMessageEvent struct {
	MessageID   string
	SenderID    string
	RecipientID string
	ListingID   string
	Preview     string
}

func (NewMessageEvent) EventKind() string { return EventNewMessage }
