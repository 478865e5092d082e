package notification

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/offerhub-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockNotificationStore struct{ mock.Mock }

func (m *mockNotificationStore) Put(ctx context.Context, n *domain.Notification) error {
	return m.Called(ctx, n).Error(0)
}
func (m *mockNotificationStore) ClaimDedupe(ctx context.Context, key string, now time.Time, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, now, window)
	return args.Bool(0), args.Error(1)
}

type mockQueueStore struct{ mock.Mock }

func (m *mockQueueStore) Put(ctx context.Context, item *domain.QueueItem) error {
	return m.Called(ctx, item).Error(0)
}

// --- helpers ---

func newTestGenerator(ns *mockNotificationStore, qs *mockQueueStore, notifyLosers bool) *Generator {
	return NewGenerator(ns, qs, GeneratorConfig{
		DedupWindow:         5 * time.Minute,
		NotifyLosingBidders: notifyLosers,
	}, slog.New(slog.DiscardHandler))
}

func offerEventFixture() (domain.Offer, domain.Listing) {
	o := domain.Offer{OfferID: "o1", ListingID: "l1", BidderID: "bidder", Amount: 100, Status: domain.OfferStatusPending}
	l := domain.Listing{ListingID: "l1", SellerID: "seller", Status: domain.ListingStatusActive}
	return o, l
}

// --- event mapping ---

func TestHandleEvent_OfferCreated_NotifiesSeller(t *testing.T) {
	ns := &mockNotificationStore{}
	qs := &mockQueueStore{}
	ns.On("ClaimDedupe", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil)

	var captured *domain.Notification
	ns.On("Put", mock.Anything, mock.AnythingOfType("*domain.Notification")).Run(func(args mock.Arguments) {
		captured = args.Get(1).(*domain.Notification)
	}).Return(nil)
	qs.On("Put", mock.Anything, mock.AnythingOfType("*domain.QueueItem")).Return(nil)

	o, l := offerEventFixture()
	g := newTestGenerator(ns, qs, false)
	err := g.HandleEvent(context.Background(), domain.OfferCreatedEvent{Offer: o, Listing: l})

	require.NoError(t, err)
	require.NotNil(t, captured)
	assert.Equal(t, "seller", captured.UserID)
	assert.Equal(t, domain.NotificationTypeNewOffer, captured.Type)
	assert.Equal(t, "o1", captured.Data["offer_id"])
	assert.Equal(t, "100.00", captured.Data["amount"])
	qs.AssertExpectations(t)
}

func TestHandleEvent_OfferAccepted_NotifiesBidder(t *testing.T) {
	ns := &mockNotificationStore{}
	qs := &mockQueueStore{}
	ns.On("ClaimDedupe", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil)

	var captured *domain.Notification
	ns.On("Put", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		captured = args.Get(1).(*domain.Notification)
	}).Return(nil)

	var item *domain.QueueItem
	qs.On("Put", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		item = args.Get(1).(*domain.QueueItem)
	}).Return(nil)

	o, l := offerEventFixture()
	g := newTestGenerator(ns, qs, false)
	err := g.HandleEvent(context.Background(), domain.OfferAcceptedEvent{Offer: o, Listing: l})

	require.NoError(t, err)
	assert.Equal(t, "bidder", captured.UserID)
	assert.Equal(t, domain.NotificationTypeOfferAccepted, captured.Type)
	require.NotNil(t, item)
	assert.Equal(t, captured.NotificationID, item.NotificationID)
	assert.Equal(t, domain.QueueStatusPending, item.QueueStatus)
}

func TestHandleEvent_OfferCountered_UsesCounterAmount(t *testing.T) {
	ns := &mockNotificationStore{}
	qs := &mockQueueStore{}
	ns.On("ClaimDedupe", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil)

	var captured *domain.Notification
	ns.On("Put", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		captured = args.Get(1).(*domain.Notification)
	}).Return(nil)
	qs.On("Put", mock.Anything, mock.Anything).Return(nil)

	o, l := offerEventFixture()
	counter := 85.0
	o.Status = domain.OfferStatusCountered
	o.CounterAmount = &counter

	g := newTestGenerator(ns, qs, false)
	err := g.HandleEvent(context.Background(), domain.OfferCounteredEvent{Offer: o, Listing: l})

	require.NoError(t, err)
	assert.Equal(t, "85.00", captured.Data["amount"])
}

func TestHandleEvent_NewMessage_NotifiesRecipient(t *testing.T) {
	ns := &mockNotificationStore{}
	qs := &mockQueueStore{}
	ns.On("ClaimDedupe", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil)

	var captured *domain.Notification
	ns.On("Put", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		captured = args.Get(1).(*domain.Notification)
	}).Return(nil)
	qs.On("Put", mock.Anything, mock.Anything).Return(nil)

	g := newTestGenerator(ns, qs, false)
	err := g.HandleEvent(context.Background(), domain.NewMessageEvent{
		MessageID:   "m1",
		SenderID:    "alice",
		RecipientID: "bob",
		Preview:     "hi there",
	})

	require.NoError(t, err)
	assert.Equal(t, "bob", captured.UserID)
	assert.Equal(t, domain.NotificationTypeNewMessage, captured.Type)
	assert.Equal(t, "hi there", captured.Body)
	assert.Equal(t, "alice", captured.Data["sender_id"])
}

// --- dedup ---

func TestHandleEvent_DuplicateInsideWindow_NoSecondRow(t *testing.T) {
	ns := &mockNotificationStore{}
	qs := &mockQueueStore{}
	ns.On("ClaimDedupe", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)

	o, l := offerEventFixture()
	g := newTestGenerator(ns, qs, false)
	err := g.HandleEvent(context.Background(), domain.OfferCreatedEvent{Offer: o, Listing: l})

	require.NoError(t, err)
	ns.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
	qs.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestDedupeKey_VariesByRecipient(t *testing.T) {
	a := dedupeKey(domain.NotificationTypeNewOffer, "o1", "alice")
	b := dedupeKey(domain.NotificationTypeNewOffer, "o1", "bob")
	c := dedupeKey(domain.NotificationTypeNewOffer, "o1", "alice")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, c)
}

// --- in-app-only and losing-bidder policy ---

func TestCreate_ReminderSkipsQueue(t *testing.T) {
	ns := &mockNotificationStore{}
	qs := &mockQueueStore{}
	ns.On("ClaimDedupe", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
	ns.On("Put", mock.Anything, mock.Anything).Return(nil)

	g := newTestGenerator(ns, qs, false)
	err := g.create(context.Background(), "u1", domain.NotificationTypeReminder,
		"Reminder", "You have a pending counter-offer", domain.OfferPayload{OfferID: "o1"}, "o1")

	require.NoError(t, err)
	ns.AssertExpectations(t)
	qs.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestHandleEvent_ListingSold_DisabledByDefault(t *testing.T) {
	ns := &mockNotificationStore{}
	qs := &mockQueueStore{}

	g := newTestGenerator(ns, qs, false)
	err := g.HandleEvent(context.Background(), domain.ListingSoldEvent{
		Listing:  domain.Listing{ListingID: "l1"},
		WinnerID: "bidder",
		LoserIDs: []string{"rival1", "rival2"},
	})

	require.NoError(t, err)
	ns.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestHandleEvent_ListingSold_NotifiesEachLoserWhenEnabled(t *testing.T) {
	ns := &mockNotificationStore{}
	qs := &mockQueueStore{}
	ns.On("ClaimDedupe", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil)

	var recipients []string
	ns.On("Put", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		recipients = append(recipients, args.Get(1).(*domain.Notification).UserID)
	}).Return(nil)
	qs.On("Put", mock.Anything, mock.Anything).Return(nil)

	g := newTestGenerator(ns, qs, true)
	err := g.HandleEvent(context.Background(), domain.ListingSoldEvent{
		Listing:    domain.Listing{ListingID: "l1"},
		WinnerID:   "bidder",
		FinalPrice: 100,
		LoserIDs:   []string{"rival1", "rival2"},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"rival1", "rival2"}, recipients)
}

func TestHandleEvent_UnknownEventKind_Ignored(t *testing.T) {
	g := newTestGenerator(&mockNotificationStore{}, &mockQueueStore{}, false)
	err := g.HandleEvent(context.Background(), fakeEvent{})
	require.NoError(t, err)
}

type fakeEvent struct{}

func (fakeEvent) EventKind() string { return "something_else" }

func TestCreate_StoreFailurePropagates(t *testing.T) {
	ns := &mockNotificationStore{}
	qs := &mockQueueStore{}
	ns.On("ClaimDedupe", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
	ns.On("Put", mock.Anything, mock.Anything).Return(errors.New("dynamo error"))

	o, l := offerEventFixture()
	g := newTestGenerator(ns, qs, false)
	err := g.HandleEvent(context.Background(), domain.OfferCreatedEvent{Offer: o, Listing: l})

	require.Error(t, err)
	qs.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}
