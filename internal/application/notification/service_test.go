package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/offerhub-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockReadStore struct{ mock.Mock }

func (m *mockReadStore) Get(ctx context.Context, notificationID string) (*domain.Notification, error) {
	args := m.Called(ctx, notificationID)
	if n, _ := args.Get(0).(*domain.Notification); n != nil {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockReadStore) ListSince(ctx context.Context, userID string, since time.Time, limit int32) ([]domain.Notification, error) {
	args := m.Called(ctx, userID, since, limit)
	return args.Get(0).([]domain.Notification), args.Error(1)
}
func (m *mockReadStore) MarkRead(ctx context.Context, notificationID string) error {
	return m.Called(ctx, notificationID).Error(0)
}

func TestList_ClampsLimit(t *testing.T) {
	rs := &mockReadStore{}
	rs.On("ListSince", mock.Anything, "u1", mock.Anything, int32(50)).Return([]domain.Notification{}, nil)

	svc := NewService(rs)
	_, err := svc.List(context.Background(), "u1", time.Time{}, 0)
	require.NoError(t, err)
	_, err = svc.List(context.Background(), "u1", time.Time{}, 500)
	require.NoError(t, err)

	rs.AssertNumberOfCalls(t, "ListSince", 2)
}

func TestMarkRead_RejectsForeignNotification(t *testing.T) {
	rs := &mockReadStore{}
	rs.On("Get", mock.Anything, "n1").Return(&domain.Notification{NotificationID: "n1", UserID: "someone-else"}, nil)

	svc := NewService(rs)
	err := svc.MarkRead(context.Background(), "u1", []string{"n1"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrOwnership))
	rs.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything)
}

func TestMarkRead_SkipsAlreadyRead(t *testing.T) {
	rs := &mockReadStore{}
	rs.On("Get", mock.Anything, "n1").Return(&domain.Notification{NotificationID: "n1", UserID: "u1", Read: true}, nil)
	rs.On("Get", mock.Anything, "n2").Return(&domain.Notification{NotificationID: "n2", UserID: "u1"}, nil)
	rs.On("MarkRead", mock.Anything, "n2").Return(nil)

	svc := NewService(rs)
	err := svc.MarkRead(context.Background(), "u1", []string{"n1", "n2"})

	require.NoError(t, err)
	rs.AssertNumberOfCalls(t, "MarkRead", 1)
}
