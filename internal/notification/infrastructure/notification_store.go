// Package infrastructure хранилище уведомлений в PostgreSQL.
package infrastructure

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/akriventsev/ordersaga/framework/core"
	"github.com/akriventsev/ordersaga/internal/notification/domain"
)

// DB подмножество pgxpool.Pool, которое использует хранилище
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NotificationStore уведомления
type NotificationStore struct {
	db DB
}

// NewNotificationStore создает хранилище
func NewNotificationStore(db DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// Insert сохраняет уведомление и заполняет его ID
func (s *NotificationStore) Insert(ctx context.Context, n *domain.Notification) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO notifications (recipient_id, message, created_at, is_read)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		n.RecipientID, n.Message, n.CreatedAt, n.IsRead,
	).Scan(&n.ID)
	if err != nil {
		return core.Wrap(err, core.ErrInternal, "Failed to send notification: "+err.Error())
	}
	return nil
}

// Inbox возвращает последние limit уведомлений пользователя и счетчики
func (s *NotificationStore) Inbox(ctx context.Context, userID int64, limit int) (*domain.Inbox, error) {
	inbox := &domain.Inbox{UserID: userID, Notifications: []*domain.Notification{}}

	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT is_read)
		FROM notifications WHERE recipient_id = $1`, userID,
	).Scan(&inbox.TotalCount, &inbox.UnreadCount)
	if err != nil {
		return nil, core.Wrap(err, core.ErrInternal, "Failed to get notifications: "+err.Error())
	}
	if inbox.TotalCount == 0 {
		return inbox, nil
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, recipient_id, message, created_at, is_read
		FROM notifications WHERE recipient_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, core.Wrap(err, core.ErrInternal, "Failed to get notifications: "+err.Error())
	}
	defer rows.Close()

	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Message, &n.CreatedAt, &n.IsRead); err != nil {
			return nil, core.Wrap(err, core.ErrInternal, "Failed to get notifications: "+err.Error())
		}
		inbox.Notifications = append(inbox.Notifications, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Wrap(err, core.ErrInternal, "Failed to get notifications: "+err.Error())
	}
	return inbox, nil
}

// Ping проверяет доступность базы
func (s *NotificationStore) Ping(ctx context.Context) error {
	_, err := s.db.Exec(ctx, "SELECT 1")
	return err
}
