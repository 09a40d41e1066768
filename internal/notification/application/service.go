// Package application сценарии notification-service.
package application

import (
	"context"
	"log"

	"github.com/akriventsev/ordersaga/framework/core"
	"github.com/akriventsev/ordersaga/internal/notification/domain"
)

// NotificationRepository хранилище уведомлений
type NotificationRepository interface {
	Insert(ctx context.Context, n *domain.Notification) error
	Inbox(ctx context.Context, userID int64, limit int) (*domain.Inbox, error)
}

// NotificationService прием и выдача уведомлений
type NotificationService struct {
	store NotificationRepository
}

// NewNotificationService создает сервис
func NewNotificationService(store NotificationRepository) *NotificationService {
	return &NotificationService{store: store}
}

// Send сохраняет уведомление. Доставка во внешние каналы не выполняется.
func (s *NotificationService) Send(ctx context.Context, recipientID int64, message string) (*domain.Notification, error) {
	n, err := domain.NewNotification(recipientID, message)
	if err != nil {
		return nil, err
	}
	if err := s.store.Insert(ctx, n); err != nil {
		return nil, err
	}
	log.Printf("[notification] #%d stored for user %d", n.ID, n.RecipientID)
	return n, nil
}

// Inbox возвращает последние уведомления пользователя
func (s *NotificationService) Inbox(ctx context.Context, userID int64) (*domain.Inbox, error) {
	if userID <= 0 {
		return nil, core.NewError(core.ErrValidationFailed, "user_id must be greater than 0")
	}
	return s.store.Inbox(ctx, userID, domain.InboxLimit)
}
