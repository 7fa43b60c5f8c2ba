package service

import (
	"context"
	"fmt"

	"tradeflow/internal/models"
	"tradeflow/internal/repository"
	"tradeflow/internal/workflow"
)

type NotificationService struct {
	Repo repository.NotificationRepository
}

func (s *NotificationService) List(ctx context.Context, u workflow.User, params repository.ListNotificationsParams) ([]models.Notification, error) {
	params.UserID = u.ID
	return s.Repo.ListNotifications(ctx, params)
}

func (s *NotificationService) Dismiss(ctx context.Context, u workflow.User, id string) error {
	n, err := s.Repo.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if n == nil {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	receiver := false
	for _, r := range n.ReceiverList() {
		if r == u.ID {
			receiver = true
			break
		}
	}
	if !receiver {
		return fmt.Errorf("notification %s: %w", id, ErrForbidden)
	}
	if n.DismissedBy(u.ID) {
		return nil
	}
	return s.Repo.DismissNotification(ctx, id, u.ID)
}
