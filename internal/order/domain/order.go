// Package domain содержит сущность заказа и ее жизненный цикл.
package domain

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/akriventsev/ordersaga/framework/core"
	"github.com/akriventsev/ordersaga/framework/fsm"
)

// MaxProductNameLength ограничение длины названия товара
const MaxProductNameLength = 255

// Status статус заказа
type Status string

const (
	StatusNew       Status = "new"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// IsTerminal сообщает, что статус больше не меняется
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// События жизненного цикла заказа
const (
	eventPay    = "pay"
	eventCancel = "cancel"
)

var (
	// ErrInsufficientFunds цена заказа превышает баланс пользователя
	ErrInsufficientFunds = core.NewError(core.ErrInsufficientFunds, "Order cancelled due to insufficient funds")
	// ErrInvalidTransition переход между статусами запрещен
	ErrInvalidTransition = core.NewError(core.ErrConflict, "order status transition is not allowed")
	// ErrOrderNotFound заказ не найден
	ErrOrderNotFound = core.NewError(core.ErrNotFound, "Order not found")
)

// Order заказ пользователя
type Order struct {
	ID          int64
	UserID      int64
	Price       decimal.Decimal
	ProductName string
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewOrder проверяет входные данные и создает заказ в статусе new.
// Цена округляется до двух знаков, название очищается от пробелов по краям.
func NewOrder(userID int64, price decimal.Decimal, productName string) (*Order, error) {
	if userID <= 0 {
		return nil, core.NewError(core.ErrValidationFailed, "User ID must be greater than 0")
	}
	price = price.Round(2)
	if !price.IsPositive() {
		return nil, core.NewError(core.ErrValidationFailed, "Price must be greater than 0")
	}
	productName = strings.TrimSpace(productName)
	if productName == "" {
		return nil, core.NewError(core.ErrValidationFailed, "Product name cannot be empty")
	}
	if utf8.RuneCountInString(productName) > MaxProductNameLength {
		return nil, core.Errorf(core.ErrValidationFailed, "Product name must be at most %d characters", MaxProductNameLength)
	}

	now := time.Now().UTC()
	return &Order{
		UserID:      userID,
		Price:       price,
		ProductName: productName,
		Status:      StatusNew,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Pay переводит заказ в paid
func (o *Order) Pay() error {
	return o.apply(eventPay)
}

// Cancel переводит заказ в cancelled
func (o *Order) Cancel() error {
	return o.apply(eventCancel)
}

func (o *Order) apply(event string) error {
	next, err := Transition(o.Status, event)
	if err != nil {
		return err
	}
	o.Status = next
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// newLifecycle строит автомат статусов: new -> paid | cancelled, оба терминальные
func newLifecycle(current Status) (*fsm.FSM, error) {
	f := fsm.NewFSM(string(StatusNew))
	f.AddTerminalState(string(StatusPaid)).AddTerminalState(string(StatusCancelled))
	if err := f.AddTransition(fsm.NewTransition(string(StatusNew), string(StatusPaid), eventPay)); err != nil {
		return nil, err
	}
	if err := f.AddTransition(fsm.NewTransition(string(StatusNew), string(StatusCancelled), eventCancel)); err != nil {
		return nil, err
	}
	if err := f.Restore(string(current)); err != nil {
		return nil, err
	}
	return f, nil
}

// Transition вычисляет статус после события или возвращает ErrInvalidTransition
func Transition(from Status, event string) (Status, error) {
	f, err := newLifecycle(from)
	if err != nil {
		return from, core.Wrap(err, core.ErrConflict, "unknown order status "+string(from))
	}
	if err := f.Trigger(context.Background(), event); err != nil {
		if errors.Is(err, fsm.ErrNoTransition) {
			return from, ErrInvalidTransition
		}
		return from, core.Wrap(err, core.ErrInternal, "order status transition failed")
	}
	return Status(f.Current()), nil
}

// EventFor возвращает событие, переводящее заказ из new в target
func EventFor(target Status) (string, error) {
	switch target {
	case StatusPaid:
		return eventPay, nil
	case StatusCancelled:
		return eventCancel, nil
	default:
		return "", ErrInvalidTransition
	}
}
