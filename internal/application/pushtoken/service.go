package pushtoken

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/offerhub-api/internal/domain"
	"github.com/offerhub-api/internal/pkg/id"
)

// Service is the push token registry: the durable per-user set of device
// delivery endpoints.
type Service interface {
	// Upsert registers a token, unique on (user_id, token): a previously
	// deactivated row is re-activated, otherwise a new row is inserted.
	Upsert(ctx context.Context, userID string, req domain.UpsertPushTokenRequest) (*domain.PushToken, error)
	// Deactivate flips a token inactive; invoked by the dispatcher on an
	// invalid-token outcome. The row is retained for audit.
	Deactivate(ctx context.Context, token string) error
	// DeactivateOwned is the client-facing variant with an ownership check.
	DeactivateOwned(ctx context.Context, userID, token string) error
	// ListActive returns the user's active tokens for fan-out.
	ListActive(ctx context.Context, userID string) ([]domain.PushToken, error)
}

type tokenStore interface {
	Put(ctx context.Context, t *domain.PushToken) error
	GetByUserAndToken(ctx context.Context, userID, token string) (*domain.PushToken, error)
	ListActiveByUser(ctx context.Context, userID string) ([]domain.PushToken, error)
	Update(ctx context.Context, tokenID string, updates map[string]interface{}) error
	Deactivate(ctx context.Context, token string) error
}

type service struct {
	repo tokenStore
	now  func() time.Time
}

func NewService(repo tokenStore) Service {
	return &service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

func (s *service) Upsert(ctx context.Context, userID string, req domain.UpsertPushTokenRequest) (*domain.PushToken, error) {
	existing, err := s.repo.GetByUserAndToken(ctx, userID, req.Token)
	if err == nil {
		updates := map[string]interface{}{
			"is_active":   true,
			"platform":    req.Platform,
			"device_name": req.DeviceName,
		}
		if err := s.repo.Update(ctx, existing.TokenID, updates); err != nil {
			return nil, err
		}
		existing.IsActive = true
		existing.Platform = req.Platform
		existing.DeviceName = req.DeviceName
		existing.UpdatedAt = s.now()
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := s.now()
	t := &domain.PushToken{
		TokenID:    id.New(),
		UserID:     userID,
		Token:      req.Token,
		Platform:   req.Platform,
		DeviceName: req.DeviceName,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Put(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *service) Deactivate(ctx context.Context, token string) error {
	return s.repo.Deactivate(ctx, token)
}

func (s *service) DeactivateOwned(ctx context.Context, userID, token string) error {
	t, err := s.repo.GetByUserAndToken(ctx, userID, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("token not registered for user: %w", domain.ErrNotFound)
		}
		return err
	}
	return s.repo.Update(ctx, t.TokenID, map[string]interface{}{"is_active": false})
}

func (s *service) ListActive(ctx context.Context, userID string) ([]domain.PushToken, error) {
	return s.repo.ListActiveByUser(ctx, userID)
}
