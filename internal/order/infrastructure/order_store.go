// Package infrastructure содержит адаптеры order-service: PostgreSQL, HTTP клиенты, шину и блокировки.
package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/akriventsev/ordersaga/framework/core"
	"github.com/akriventsev/ordersaga/internal/order/domain"
)

// DB подмножество pgxpool.Pool, которое использует хранилище
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// OrderStore хранилище заказов в PostgreSQL
type OrderStore struct {
	db DB
}

// NewOrderStore создает хранилище заказов
func NewOrderStore(db DB) *OrderStore {
	return &OrderStore{db: db}
}

const orderColumns = `id, user_id, price::text, product_name, status, created_at, updated_at`

// Insert сохраняет новый заказ и заполняет его ID и временные метки
func (s *OrderStore) Insert(ctx context.Context, order *domain.Order) (int64, error) {
	err := s.db.QueryRow(ctx, `
		INSERT INTO orders (user_id, price, product_name, status, created_at, updated_at)
		VALUES ($1, $2::numeric, $3, $4, $5, $6)
		RETURNING id`,
		order.UserID, order.Price.StringFixed(2), order.ProductName, string(order.Status), order.CreatedAt, order.UpdatedAt,
	).Scan(&order.ID)
	if err != nil {
		return 0, core.Wrap(err, core.ErrInternal, "failed to create order")
	}
	return order.ID, nil
}

// UpdateStatus переводит заказ из new в терминальный статус.
// Повторная установка того же статуса не считается ошибкой.
func (s *OrderStore) UpdateStatus(ctx context.Context, orderID int64, status domain.Status) error {
	event, err := domain.EventFor(status)
	if err != nil {
		return err
	}
	if _, err := domain.Transition(domain.StatusNew, event); err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = $3
		WHERE id = $1 AND status = $4`,
		orderID, string(status), time.Now().UTC(), string(domain.StatusNew))
	if err != nil {
		return core.Wrap(err, core.ErrInternal, fmt.Sprintf("failed to update order %d", orderID))
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	current, err := s.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if current.Status == status {
		return nil
	}
	return core.Errorf(core.ErrConflict, "order %d is already %s", orderID, current.Status)
}

// Get возвращает заказ по ID
func (s *OrderStore) Get(ctx context.Context, orderID int64) (*domain.Order, error) {
	order, err := scanOrder(s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, core.Wrap(err, core.ErrInternal, fmt.Sprintf("failed to load order %d", orderID))
	}
	return order, nil
}

// ListByUser возвращает заказы пользователя, новые первыми
func (s *OrderStore) ListByUser(ctx context.Context, userID int64, offset, limit int) ([]*domain.Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		OFFSET $2 LIMIT $3`,
		userID, offset, limit)
	if err != nil {
		return nil, core.Wrap(err, core.ErrInternal, "failed to list orders")
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, core.Wrap(err, core.ErrInternal, "failed to scan order")
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Wrap(err, core.ErrInternal, "failed to list orders")
	}
	return orders, nil
}

// Ping проверяет доступность базы для /health
func (s *OrderStore) Ping(ctx context.Context) error {
	var one int
	return s.db.QueryRow(ctx, `SELECT 1`).Scan(&one)
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		order  domain.Order
		price  string
		status string
	)
	if err := row.Scan(&order.ID, &order.UserID, &price, &order.ProductName, &status, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", price, err)
	}
	order.Price = amount
	order.Status = domain.Status(status)
	return &order, nil
}
