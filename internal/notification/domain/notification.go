// Package domain модель уведомления.
package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/akriventsev/ordersaga/framework/core"
)

const (
	// MaxMessageLength предел длины текста в символах
	MaxMessageLength = 1000
	// InboxLimit сколько последних уведомлений отдается в списке
	InboxLimit = 100
	// StatusSent статус принятого уведомления
	StatusSent = "sent"
)

// Notification сохраненное уведомление
type Notification struct {
	ID          int64
	RecipientID int64
	Message     string
	CreatedAt   time.Time
	IsRead      bool
}

// Inbox уведомления пользователя и счетчики
type Inbox struct {
	UserID        int64
	TotalCount    int64
	UnreadCount   int64
	Notifications []*Notification
}

// NewNotification проверяет и нормализует входные данные
func NewNotification(recipientID int64, message string) (*Notification, error) {
	if recipientID <= 0 {
		return nil, core.NewError(core.ErrValidationFailed, "recipient_id must be greater than 0")
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, core.NewError(core.ErrValidationFailed, "message cannot be empty")
	}
	if utf8.RuneCountInString(message) > MaxMessageLength {
		return nil, core.Errorf(core.ErrValidationFailed, "message must be at most %d characters", MaxMessageLength)
	}
	return &Notification{RecipientID: recipientID, Message: message, CreatedAt: time.Now().UTC()}, nil
}
