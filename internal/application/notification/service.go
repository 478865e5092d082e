package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/offerhub-api/internal/domain"
)

// Service is the client-facing notification surface.
type Service interface {
	List(ctx context.Context, userID string, since time.Time, limit int32) ([]domain.Notification, error)
	MarkRead(ctx context.Context, userID string, notificationIDs []string) error
}

type readStore interface {
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
	ListSince(ctx context.Context, userID string, since time.Time, limit int32) ([]domain.Notification, error)
	MarkRead(ctx context.Context, notificationID string) error
}

type service struct {
	repo readStore
}

func NewService(repo readStore) Service {
	return &service{repo: repo}
}

func (s *service) List(ctx context.Context, userID string, since time.Time, limit int32) ([]domain.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListSince(ctx, userID, since, limit)
}

func (s *service) MarkRead(ctx context.Context, userID string, notificationIDs []string) error {
	for _, nid := range notificationIDs {
		n, err := s.repo.Get(ctx, nid)
		if err != nil {
			return err
		}
		if n.UserID != userID {
			return fmt.Errorf("notification %s belongs to another user: %w", nid, domain.ErrOwnership)
		}
		if n.Read {
			continue
		}
		if err := s.repo.MarkRead(ctx, nid); err != nil {
			return err
		}
	}
	return nil
}
