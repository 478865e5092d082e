package pushtoken

import (
	"context"
	"errors"
	"testing"

	"github.com/offerhub-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTokenStore struct{ mock.Mock }

func (m *mockTokenStore) Put(ctx context.Context, t *domain.PushToken) error {
	return m.Called(ctx, t).Error(0)
}
func (m *mockTokenStore) GetByUserAndToken(ctx context.Context, userID, token string) (*domain.PushToken, error) {
	args := m.Called(ctx, userID, token)
	if t, _ := args.Get(0).(*domain.PushToken); t != nil {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockTokenStore) ListActiveByUser(ctx context.Context, userID string) ([]domain.PushToken, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.PushToken), args.Error(1)
}
func (m *mockTokenStore) Update(ctx context.Context, tokenID string, updates map[string]interface{}) error {
	return m.Called(ctx, tokenID, updates).Error(0)
}
func (m *mockTokenStore) Deactivate(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

func upsertReq() domain.UpsertPushTokenRequest {
	return domain.UpsertPushTokenRequest{
		Token:      "tok-abc",
		Platform:   domain.PlatformIOS,
		DeviceName: "alice's phone",
	}
}

func TestUpsert_NewToken(t *testing.T) {
	ts := &mockTokenStore{}
	ts.On("GetByUserAndToken", mock.Anything, "u1", "tok-abc").Return(nil, domain.ErrNotFound)
	ts.On("Put", mock.Anything, mock.AnythingOfType("*domain.PushToken")).Return(nil)

	svc := NewService(ts)
	tok, err := svc.Upsert(context.Background(), "u1", upsertReq())

	require.NoError(t, err)
	assert.NotEmpty(t, tok.TokenID)
	assert.Equal(t, "u1", tok.UserID)
	assert.True(t, tok.IsActive)
	ts.AssertExpectations(t)
}

func TestUpsert_ReactivatesExistingRow(t *testing.T) {
	ts := &mockTokenStore{}
	existing := &domain.PushToken{TokenID: "t1", UserID: "u1", Token: "tok-abc", IsActive: false}
	ts.On("GetByUserAndToken", mock.Anything, "u1", "tok-abc").Return(existing, nil)
	ts.On("Update", mock.Anything, "t1", mock.MatchedBy(func(u map[string]interface{}) bool {
		return u["is_active"] == true
	})).Return(nil)

	svc := NewService(ts)
	tok, err := svc.Upsert(context.Background(), "u1", upsertReq())

	require.NoError(t, err)
	assert.Equal(t, "t1", tok.TokenID)
	assert.True(t, tok.IsActive)
	// No second row is inserted.
	ts.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestUpsert_StoreErrorPropagates(t *testing.T) {
	ts := &mockTokenStore{}
	storeErr := errors.New("dynamo error")
	ts.On("GetByUserAndToken", mock.Anything, "u1", "tok-abc").Return(nil, storeErr)

	svc := NewService(ts)
	_, err := svc.Upsert(context.Background(), "u1", upsertReq())

	require.Error(t, err)
	assert.Equal(t, storeErr, err)
}

func TestDeactivateOwned_UnknownToken(t *testing.T) {
	ts := &mockTokenStore{}
	ts.On("GetByUserAndToken", mock.Anything, "u1", "tok-gone").Return(nil, domain.ErrNotFound)

	svc := NewService(ts)
	err := svc.DeactivateOwned(context.Background(), "u1", "tok-gone")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestDeactivateOwned_FlipsInactive(t *testing.T) {
	ts := &mockTokenStore{}
	ts.On("GetByUserAndToken", mock.Anything, "u1", "tok-abc").Return(&domain.PushToken{TokenID: "t1"}, nil)
	ts.On("Update", mock.Anything, "t1", map[string]interface{}{"is_active": false}).Return(nil)

	svc := NewService(ts)
	err := svc.DeactivateOwned(context.Background(), "u1", "tok-abc")

	require.NoError(t, err)
	ts.AssertExpectations(t)
}
