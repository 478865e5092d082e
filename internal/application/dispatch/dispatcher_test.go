package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/offerhub-api/internal/domain"
	"github.com/offerhub-api/internal/infrastructure/push"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockQueueStore struct{ mock.Mock }

func (m *mockQueueStore) ListDue(ctx context.Context, now time.Time, limit int32) ([]domain.QueueItem, error) {
	args := m.Called(ctx, now, limit)
	return args.Get(0).([]domain.QueueItem), args.Error(1)
}
func (m *mockQueueStore) Claim(ctx context.Context, itemID, owner string, now time.Time, lease time.Duration) (bool, error) {
	args := m.Called(ctx, itemID, owner, now, lease)
	return args.Bool(0), args.Error(1)
}
func (m *mockQueueStore) MarkResolved(ctx context.Context, itemID, status string) error {
	return m.Called(ctx, itemID, status).Error(0)
}
func (m *mockQueueStore) Reschedule(ctx context.Context, itemID string, attemptCount int, nextAttempt time.Time, lastErr string) error {
	return m.Called(ctx, itemID, attemptCount, nextAttempt, lastErr).Error(0)
}
func (m *mockQueueStore) DeadLetter(ctx context.Context, itemID, lastErr string) error {
	return m.Called(ctx, itemID, lastErr).Error(0)
}

type mockNotificationStore struct{ mock.Mock }

func (m *mockNotificationStore) Get(ctx context.Context, notificationID string) (*domain.Notification, error) {
	args := m.Called(ctx, notificationID)
	if n, _ := args.Get(0).(*domain.Notification); n != nil {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockNotificationStore) MarkSent(ctx context.Context, notificationID string) error {
	return m.Called(ctx, notificationID).Error(0)
}

type mockTokenStore struct{ mock.Mock }

func (m *mockTokenStore) ListActiveByUser(ctx context.Context, userID string) ([]domain.PushToken, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.PushToken), args.Error(1)
}
func (m *mockTokenStore) Deactivate(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

type mockSender struct{ mock.Mock }

func (m *mockSender) Send(ctx context.Context, msg push.Message) (push.Outcome, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(push.Outcome), args.Error(1)
}
func (m *mockSender) Supports(platform string) bool {
	return m.Called(platform).Bool(0)
}

type mockArchive struct{ mock.Mock }

func (m *mockArchive) Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	args := m.Called(ctx, key, r, contentType)
	return args.String(0), args.Error(1)
}

// --- helpers ---

func testConfig() Config {
	return Config{
		WorkerID:    "w1",
		Workers:     2,
		Lease:       2 * time.Minute,
		SendTimeout: time.Second,
		MaxAttempts: 5,
		BackoffBase: 30 * time.Second,
		BackoffCap:  30 * time.Minute,
		BatchSize:   25,
	}
}

func newTestDispatcher(qs *mockQueueStore, ns *mockNotificationStore, ts *mockTokenStore,
	native, universal push.Sender, archive *mockArchive) *Dispatcher {
	var arch archiveStore
	if archive != nil {
		arch = archive
	}
	return New(qs, ns, ts, native, universal, arch, testConfig(), slog.New(slog.DiscardHandler))
}

func pendingItem() domain.QueueItem {
	return domain.QueueItem{
		ItemID:         "q1",
		NotificationID: "n1",
		UserID:         "u1",
		QueueStatus:    domain.QueueStatusPending,
	}
}

func notificationFixture() *domain.Notification {
	return &domain.Notification{
		NotificationID: "n1",
		UserID:         "u1",
		Type:           domain.NotificationTypeNewOffer,
		Title:          "New offer received",
		Body:           "You received an offer of 100.00 on your listing",
	}
}

func token(id, tok, platform string) domain.PushToken {
	return domain.PushToken{TokenID: id, Token: tok, Platform: platform, IsActive: true}
}

// --- process ---

func TestProcess_NoTokens_DeliveredInAppWithoutTransportCall(t *testing.T) {
	qs := &mockQueueStore{}
	ns := &mockNotificationStore{}
	ts := &mockTokenStore{}
	universal := &mockSender{}

	ns.On("Get", mock.Anything, "n1").Return(notificationFixture(), nil)
	ts.On("ListActiveByUser", mock.Anything, "u1").Return([]domain.PushToken{}, nil)
	qs.On("MarkResolved", mock.Anything, "q1", domain.QueueStatusDeliveredInApp).Return(nil)
	ns.On("MarkSent", mock.Anything, "n1").Return(nil)

	d := newTestDispatcher(qs, ns, ts, nil, universal, nil)
	d.process(context.Background(), pendingItem())

	qs.AssertExpectations(t)
	universal.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestProcess_InvalidTokenThenDelivered(t *testing.T) {
	qs := &mockQueueStore{}
	ns := &mockNotificationStore{}
	ts := &mockTokenStore{}
	universal := &mockSender{}

	ns.On("Get", mock.Anything, "n1").Return(notificationFixture(), nil)
	ts.On("ListActiveByUser", mock.Anything, "u1").Return([]domain.PushToken{
		token("t1", "dead-token", domain.PlatformAndroid),
		token("t2", "live-token", domain.PlatformAndroid),
	}, nil)
	universal.On("Send", mock.Anything, mock.MatchedBy(func(m push.Message) bool {
		return m.Token == "dead-token"
	})).Return(push.OutcomeInvalidToken, errors.New("DeviceNotRegistered"))
	universal.On("Send", mock.Anything, mock.MatchedBy(func(m push.Message) bool {
		return m.Token == "live-token"
	})).Return(push.OutcomeDelivered, nil)
	ts.On("Deactivate", mock.Anything, "dead-token").Return(nil)
	qs.On("MarkResolved", mock.Anything, "q1", domain.QueueStatusDelivered).Return(nil)
	ns.On("MarkSent", mock.Anything, "n1").Return(nil)

	d := newTestDispatcher(qs, ns, ts, nil, universal, nil)
	d.process(context.Background(), pendingItem())

	// Invalid token deactivated, delivery resolved, no retry booked.
	ts.AssertExpectations(t)
	qs.AssertExpectations(t)
	qs.AssertNotCalled(t, "Reschedule", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_AllTokensInvalid_DegradesToInApp(t *testing.T) {
	qs := &mockQueueStore{}
	ns := &mockNotificationStore{}
	ts := &mockTokenStore{}
	universal := &mockSender{}

	ns.On("Get", mock.Anything, "n1").Return(notificationFixture(), nil)
	ts.On("ListActiveByUser", mock.Anything, "u1").Return([]domain.PushToken{
		token("t1", "dead-1", domain.PlatformWeb),
		token("t2", "dead-2", domain.PlatformWeb),
	}, nil)
	universal.On("Send", mock.Anything, mock.Anything).Return(push.OutcomeInvalidToken, errors.New("DeviceNotRegistered"))
	ts.On("Deactivate", mock.Anything, mock.Anything).Return(nil)
	qs.On("MarkResolved", mock.Anything, "q1", domain.QueueStatusDeliveredInApp).Return(nil)
	ns.On("MarkSent", mock.Anything, "n1").Return(nil)

	d := newTestDispatcher(qs, ns, ts, nil, universal, nil)
	d.process(context.Background(), pendingItem())

	qs.AssertExpectations(t)
	ts.AssertNumberOfCalls(t, "Deactivate", 2)
}

func TestProcess_TransientFailure_Reschedules(t *testing.T) {
	qs := &mockQueueStore{}
	ns := &mockNotificationStore{}
	ts := &mockTokenStore{}
	universal := &mockSender{}

	ns.On("Get", mock.Anything, "n1").Return(notificationFixture(), nil)
	ts.On("ListActiveByUser", mock.Anything, "u1").Return([]domain.PushToken{
		token("t1", "tok", domain.PlatformAndroid),
	}, nil)
	universal.On("Send", mock.Anything, mock.Anything).Return(push.OutcomeTransient, errors.New("relay 503"))
	qs.On("Reschedule", mock.Anything, "q1", 1, mock.Anything, "relay 503").Return(nil)

	d := newTestDispatcher(qs, ns, ts, nil, universal, nil)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return base }
	d.process(context.Background(), pendingItem())

	qs.AssertExpectations(t)
	// First retry lands one backoff-base after now.
	next := qs.Calls[0].Arguments.Get(3).(time.Time)
	assert.Equal(t, base.Add(30*time.Second), next)
}

func TestProcess_TransientAtAttemptBudget_DeadLetters(t *testing.T) {
	qs := &mockQueueStore{}
	ns := &mockNotificationStore{}
	ts := &mockTokenStore{}
	universal := &mockSender{}

	ns.On("Get", mock.Anything, "n1").Return(notificationFixture(), nil)
	ts.On("ListActiveByUser", mock.Anything, "u1").Return([]domain.PushToken{
		token("t1", "tok", domain.PlatformAndroid),
	}, nil)
	universal.On("Send", mock.Anything, mock.Anything).Return(push.OutcomeTransient, errors.New("relay 503"))
	qs.On("DeadLetter", mock.Anything, "q1", "relay 503").Return(nil)

	item := pendingItem()
	item.AttemptCount = 4 // this is the fifth and final attempt

	d := newTestDispatcher(qs, ns, ts, nil, universal, nil)
	d.process(context.Background(), item)

	qs.AssertExpectations(t)
	qs.AssertNotCalled(t, "Reschedule", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_PermanentFailure_DeadLettersAndArchives(t *testing.T) {
	qs := &mockQueueStore{}
	ns := &mockNotificationStore{}
	ts := &mockTokenStore{}
	universal := &mockSender{}
	archive := &mockArchive{}

	ns.On("Get", mock.Anything, "n1").Return(notificationFixture(), nil)
	ts.On("ListActiveByUser", mock.Anything, "u1").Return([]domain.PushToken{
		token("t1", "tok", domain.PlatformAndroid),
	}, nil)
	universal.On("Send", mock.Anything, mock.Anything).Return(push.OutcomePermanent, errors.New("platform application disabled"))
	qs.On("DeadLetter", mock.Anything, "q1", "platform application disabled").Return(nil)
	archive.On("Upload", mock.Anything, "dead-letter/q1.json", mock.Anything, "application/json").Return("s3://bucket/dead-letter/q1.json", nil)

	d := newTestDispatcher(qs, ns, ts, nil, universal, archive)
	d.process(context.Background(), pendingItem())

	qs.AssertExpectations(t)
	archive.AssertExpectations(t)
}

func TestProcess_TransientBeatsPermanentInMixedOutcome(t *testing.T) {
	qs := &mockQueueStore{}
	ns := &mockNotificationStore{}
	ts := &mockTokenStore{}
	universal := &mockSender{}

	ns.On("Get", mock.Anything, "n1").Return(notificationFixture(), nil)
	ts.On("ListActiveByUser", mock.Anything, "u1").Return([]domain.PushToken{
		token("t1", "tok-1", domain.PlatformAndroid),
		token("t2", "tok-2", domain.PlatformAndroid),
	}, nil)
	universal.On("Send", mock.Anything, mock.MatchedBy(func(m push.Message) bool {
		return m.Token == "tok-1"
	})).Return(push.OutcomePermanent, errors.New("permanent"))
	universal.On("Send", mock.Anything, mock.MatchedBy(func(m push.Message) bool {
		return m.Token == "tok-2"
	})).Return(push.OutcomeTransient, errors.New("transient"))
	qs.On("Reschedule", mock.Anything, "q1", 1, mock.Anything, "transient").Return(nil)

	d := newTestDispatcher(qs, ns, ts, nil, universal, nil)
	d.process(context.Background(), pendingItem())

	// A transient outcome keeps the item retryable even after a permanent one.
	qs.AssertExpectations(t)
	qs.AssertNotCalled(t, "DeadLetter", mock.Anything, mock.Anything, mock.Anything)
}

// --- send routing ---

func TestSend_PrefersNativeRelayWhenSupported(t *testing.T) {
	native := &mockSender{}
	universal := &mockSender{}
	native.On("Supports", domain.PlatformIOS).Return(true)
	native.On("Send", mock.Anything, mock.Anything).Return(push.OutcomeDelivered, nil)

	d := newTestDispatcher(&mockQueueStore{}, &mockNotificationStore{}, &mockTokenStore{}, native, universal, nil)
	outcome, err := d.send(context.Background(), notificationFixture(), token("t1", "tok", domain.PlatformIOS))

	require.NoError(t, err)
	assert.Equal(t, push.OutcomeDelivered, outcome)
	universal.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestSend_FallsBackToUniversalRelay(t *testing.T) {
	native := &mockSender{}
	universal := &mockSender{}
	native.On("Supports", domain.PlatformWeb).Return(false)

	var sent push.Message
	universal.On("Send", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		sent = args.Get(1).(push.Message)
	}).Return(push.OutcomeDelivered, nil)

	d := newTestDispatcher(&mockQueueStore{}, &mockNotificationStore{}, &mockTokenStore{}, native, universal, nil)
	_, err := d.send(context.Background(), notificationFixture(), token("t1", "tok", domain.PlatformWeb))

	require.NoError(t, err)
	assert.Equal(t, domain.ChannelBids, sent.ChannelID)
	native.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

// --- RunOnce ---

func TestRunOnce_SkipsItemsWithLiveLease(t *testing.T) {
	qs := &mockQueueStore{}
	ns := &mockNotificationStore{}
	ts := &mockTokenStore{}
	universal := &mockSender{}

	itemA := pendingItem()
	itemB := pendingItem()
	itemB.ItemID = "q2"
	itemB.NotificationID = "n2"

	qs.On("ListDue", mock.Anything, mock.Anything, int32(25)).Return([]domain.QueueItem{itemA, itemB}, nil)
	qs.On("Claim", mock.Anything, "q1", "w1", mock.Anything, mock.Anything).Return(true, nil)
	qs.On("Claim", mock.Anything, "q2", "w1", mock.Anything, mock.Anything).Return(false, nil)

	ns.On("Get", mock.Anything, "n1").Return(notificationFixture(), nil)
	ts.On("ListActiveByUser", mock.Anything, "u1").Return([]domain.PushToken{}, nil)
	qs.On("MarkResolved", mock.Anything, "q1", domain.QueueStatusDeliveredInApp).Return(nil)
	ns.On("MarkSent", mock.Anything, "n1").Return(nil)

	d := newTestDispatcher(qs, ns, ts, nil, universal, nil)
	err := d.RunOnce(context.Background())

	require.NoError(t, err)
	// q2's lease was held elsewhere; its notification is never loaded.
	ns.AssertNotCalled(t, "Get", mock.Anything, "n2")
}

// --- backoff ---

func TestBackoff_DoublesAndCaps(t *testing.T) {
	d := newTestDispatcher(&mockQueueStore{}, &mockNotificationStore{}, &mockTokenStore{}, nil, &mockSender{}, nil)

	assert.Equal(t, 30*time.Second, d.backoff(1))
	assert.Equal(t, time.Minute, d.backoff(2))
	assert.Equal(t, 2*time.Minute, d.backoff(3))
	assert.Equal(t, 4*time.Minute, d.backoff(4))
	assert.Equal(t, 8*time.Minute, d.backoff(5))
	assert.Equal(t, 30*time.Minute, d.backoff(12))
}
