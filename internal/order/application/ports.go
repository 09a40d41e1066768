// Package application реализует сагу создания заказа и сценарии order-service.
package application

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/akriventsev/ordersaga/internal/order/domain"
)

// OrderRepository хранилище заказов
type OrderRepository interface {
	Insert(ctx context.Context, order *domain.Order) (int64, error)
	UpdateStatus(ctx context.Context, orderID int64, status domain.Status) error
	ListByUser(ctx context.Context, userID int64, offset, limit int) ([]*domain.Order, error)
}

// BalanceService операции со счетом пользователя в billing-service
type BalanceService interface {
	GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error)
	Withdraw(ctx context.Context, userID int64, amount decimal.Decimal) error
}

// Notifier доставка уведомлений пользователю
type Notifier interface {
	Send(ctx context.Context, recipientID int64, message string) error
}

// UserLocker сериализует саги одного пользователя
type UserLocker interface {
	Acquire(ctx context.Context, userID int64) (release func(), err error)
}
