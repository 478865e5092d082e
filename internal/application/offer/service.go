package offer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/offerhub-api/internal/domain"
	"github.com/offerhub-api/internal/pkg/id"
)

// Service is the offer lifecycle engine. Every operation is a short
// transaction against the durable store; events are emitted synchronously
// after the store commit, never from storage triggers.
type Service interface {
	Submit(ctx context.Context, bidderID string, req domain.SubmitOfferRequest) (*domain.Offer, error)
	Accept(ctx context.Context, offerID, actorID string) (*domain.Offer, error)
	Reject(ctx context.Context, offerID, actorID string) (*domain.Offer, error)
	Counter(ctx context.Context, offerID, actorID string, req domain.CounterOfferRequest) (*domain.Offer, error)
	Withdraw(ctx context.Context, offerID, bidderID string) (*domain.Offer, error)
	Get(ctx context.Context, offerID, actorID string) (*domain.Offer, error)
	ListForListing(ctx context.Context, listingID, actorID string) ([]domain.Offer, error)
	// ExpireStale transitions live offers older than ttl to expired.
	// Clock-driven; invoked by the dispatcher binary's sweeper.
	ExpireStale(ctx context.Context, ttl time.Duration, limit int32) (int, error)
}

type offerStore interface {
	Put(ctx context.Context, o *domain.Offer) error
	Get(ctx context.Context, offerID string) (*domain.Offer, error)
	ListByListing(ctx context.Context, listingID string) ([]domain.Offer, error)
	ListStale(ctx context.Context, status string, cutoff time.Time, limit int32) ([]domain.Offer, error)
	UpdateStatus(ctx context.Context, offerID, newStatus string, allowedFrom []string, extra map[string]interface{}) error
	Accept(ctx context.Context, t domain.AcceptTransaction) error
}

type listingStore interface {
	Get(ctx context.Context, listingID string) (*domain.Listing, error)
}

// EventSink consumes domain events synchronously. Sink failures are logged
// and never fail the offer operation: the store commit is the source of
// truth, notifications are downstream.
type EventSink interface {
	HandleEvent(ctx context.Context, e domain.Event) error
}

type service struct {
	offers   offerStore
	listings listingStore
	events   EventSink
	log      *slog.Logger
	now      func() time.Time
}

func NewService(offers offerStore, listings listingStore, events EventSink, log *slog.Logger) Service {
	return &service{
		offers:   offers,
		listings: listings,
		events:   events,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) Submit(ctx context.Context, bidderID string, req domain.SubmitOfferRequest) (*domain.Offer, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("offer amount must be positive: %w", domain.ErrValidation)
	}
	listing, err := s.listings.Get(ctx, req.ListingID)
	if err != nil {
		return nil, err
	}
	if listing.Status != domain.ListingStatusActive {
		return nil, fmt.Errorf("listing no longer active: %w", domain.ErrState)
	}
	if listing.SellerID == bidderID {
		return nil, fmt.Errorf("seller cannot bid on own listing: %w", domain.ErrOwnership)
	}

	now := s.now()
	o := &domain.Offer{
		OfferID:   id.New(),
		ListingID: req.ListingID,
		BidderID:  bidderID,
		Amount:    req.Amount,
		Message:   req.Message,
		Status:    domain.OfferStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.offers.Put(ctx, o); err != nil {
		return nil, err
	}

	s.emit(ctx, domain.OfferCreatedEvent{Offer: *o, Listing: *listing})
	return o, nil
}

func (s *service) Accept(ctx context.Context, offerID, actorID string) (*domain.Offer, error) {
	o, listing, err := s.loadForSeller(ctx, offerID, actorID)
	if err != nil {
		return nil, err
	}
	if !o.Live() {
		return nil, fmt.Errorf("offer already %s: %w", o.Status, domain.ErrState)
	}
	if listing.Status != domain.ListingStatusActive {
		return nil, fmt.Errorf("listing no longer active: %w", domain.ErrState)
	}

	siblings, err := s.offers.ListByListing(ctx, o.ListingID)
	if err != nil {
		return nil, err
	}
	var siblingIDs []string
	var losers []domain.Offer
	for _, sib := range siblings {
		if sib.OfferID != o.OfferID && sib.Live() {
			siblingIDs = append(siblingIDs, sib.OfferID)
			losers = append(losers, sib)
		}
	}

	now := s.now()
	// One atomic unit: offer accepted, listing sold, siblings rejected.
	// Exactly one of several racing accepts commits; losers get ErrState
	// from the listing active→sold condition with zero side effects.
	if err := s.offers.Accept(ctx, domain.AcceptTransaction{
		OfferID:    o.OfferID,
		ListingID:  o.ListingID,
		FinalPrice: o.Amount,
		SiblingIDs: siblingIDs,
		Now:        now,
	}); err != nil {
		return nil, err
	}

	o.Status = domain.OfferStatusAccepted
	o.UpdatedAt = now
	listing.Status = domain.ListingStatusSold
	listing.FinalPrice = &o.Amount

	s.emit(ctx, domain.OfferAcceptedEvent{Offer: *o, Listing: *listing})
	loserIDs := make([]string, 0, len(losers))
	for _, l := range losers {
		rejected := l
		rejected.Status = domain.OfferStatusRejected
		s.emit(ctx, domain.OfferRejectedEvent{Offer: rejected, Listing: *listing})
		loserIDs = append(loserIDs, l.BidderID)
	}
	s.emit(ctx, domain.ListingSoldEvent{
		Listing:    *listing,
		WinnerID:   o.BidderID,
		FinalPrice: o.Amount,
		LoserIDs:   loserIDs,
	})
	return o, nil
}

func (s *service) Reject(ctx context.Context, offerID, actorID string) (*domain.Offer, error) {
	o, listing, err := s.loadForSeller(ctx, offerID, actorID)
	if err != nil {
		return nil, err
	}
	if !o.Live() {
		return nil, fmt.Errorf("offer already %s: %w", o.Status, domain.ErrState)
	}
	if err := s.offers.UpdateStatus(ctx, o.OfferID, domain.OfferStatusRejected,
		[]string{domain.OfferStatusPending, domain.OfferStatusCountered}, nil); err != nil {
		return nil, err
	}
	o.Status = domain.OfferStatusRejected
	o.UpdatedAt = s.now()
	s.emit(ctx, domain.OfferRejectedEvent{Offer: *o, Listing: *listing})
	return o, nil
}

func (s *service) Counter(ctx context.Context, offerID, actorID string, req domain.CounterOfferRequest) (*domain.Offer, error) {
	if req.CounterAmount <= 0 {
		return nil, fmt.Errorf("counter amount must be positive: %w", domain.ErrValidation)
	}
	o, listing, err := s.loadForSeller(ctx, offerID, actorID)
	if err != nil {
		return nil, err
	}
	if o.Status != domain.OfferStatusPending {
		return nil, fmt.Errorf("offer already %s: %w", o.Status, domain.ErrState)
	}
	if err := s.offers.UpdateStatus(ctx, o.OfferID, domain.OfferStatusCountered,
		[]string{domain.OfferStatusPending}, map[string]interface{}{
			"counter_amount":  req.CounterAmount,
			"counter_message": req.CounterMessage,
		}); err != nil {
		return nil, err
	}
	o.Status = domain.OfferStatusCountered
	o.CounterAmount = &req.CounterAmount
	o.CounterMessage = &req.CounterMessage
	o.UpdatedAt = s.now()
	s.emit(ctx, domain.OfferCounteredEvent{Offer: *o, Listing: *listing})
	return o, nil
}

func (s *service) Withdraw(ctx context.Context, offerID, bidderID string) (*domain.Offer, error) {
	o, err := s.offers.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if o.BidderID != bidderID {
		return nil, fmt.Errorf("only the bidder may withdraw: %w", domain.ErrOwnership)
	}
	if !o.Live() {
		return nil, fmt.Errorf("offer already %s: %w", o.Status, domain.ErrState)
	}
	if err := s.offers.UpdateStatus(ctx, o.OfferID, domain.OfferStatusWithdrawn,
		[]string{domain.OfferStatusPending, domain.OfferStatusCountered}, nil); err != nil {
		return nil, err
	}
	// Withdrawal never retracts notifications already created for prior
	// events on this offer — history is immutable.
	o.Status = domain.OfferStatusWithdrawn
	o.UpdatedAt = s.now()
	return o, nil
}

func (s *service) Get(ctx context.Context, offerID, actorID string) (*domain.Offer, error) {
	o, err := s.offers.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if o.BidderID == actorID {
		return o, nil
	}
	listing, err := s.listings.Get(ctx, o.ListingID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID != actorID {
		return nil, fmt.Errorf("offer is visible to its bidder and seller only: %w", domain.ErrOwnership)
	}
	return o, nil
}

func (s *service) ListForListing(ctx context.Context, listingID, actorID string) ([]domain.Offer, error) {
	listing, err := s.listings.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}
	offers, err := s.offers.ListByListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID == actorID {
		return offers, nil
	}
	// Bidders see only their own offers.
	var own []domain.Offer
	for _, o := range offers {
		if o.BidderID == actorID {
			own = append(own, o)
		}
	}
	return own, nil
}

func (s *service) ExpireStale(ctx context.Context, ttl time.Duration, limit int32) (int, error) {
	cutoff := s.now().Add(-ttl)
	expired := 0
	for _, status := range []string{domain.OfferStatusPending, domain.OfferStatusCountered} {
		stale, err := s.offers.ListStale(ctx, status, cutoff, limit)
		if err != nil {
			return expired, err
		}
		for _, o := range stale {
			err := s.offers.UpdateStatus(ctx, o.OfferID, domain.OfferStatusExpired,
				[]string{domain.OfferStatusPending, domain.OfferStatusCountered}, nil)
			if err != nil {
				// A concurrent transition won; the offer is no longer stale.
				s.log.Warn("skip expiring offer", "offer_id", o.OfferID, "err", err)
				continue
			}
			expired++
		}
	}
	return expired, nil
}

// loadForSeller loads the offer and its listing and verifies the actor is
// the listing's seller.
func (s *service) loadForSeller(ctx context.Context, offerID, actorID string) (*domain.Offer, *domain.Listing, error) {
	o, err := s.offers.Get(ctx, offerID)
	if err != nil {
		return nil, nil, err
	}
	listing, err := s.listings.Get(ctx, o.ListingID)
	if err != nil {
		return nil, nil, err
	}
	if listing.SellerID != actorID {
		return nil, nil, fmt.Errorf("only the seller may act on this offer: %w", domain.ErrOwnership)
	}
	return o, listing, nil
}

func (s *service) emit(ctx context.Context, e domain.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.HandleEvent(ctx, e); err != nil {
		s.log.Warn("event handling failed", "event", e.EventKind(), "err", err)
	}
}
