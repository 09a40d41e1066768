package domain

import (
	"strconv"

	"github.com/akriventsev/ordersaga/framework/events"
)

// AggregateType тип агрегата в событиях billing
const AggregateType = "account"

// Типы событий счета
const (
	EventFundsDeposited = "account.deposited"
	EventFundsWithdrawn = "account.withdrawn"
)

// AccountEvent событие изменения баланса
type AccountEvent struct {
	*events.BaseEvent
	UserID     int64  `json:"user_id"`
	Amount     string `json:"amount"`
	NewBalance string `json:"new_balance"`
}

// NewAccountEvent создает событие по результату операции
func NewAccountEvent(op *Operation) *AccountEvent {
	eventType := EventFundsDeposited
	if op.Operation == OperationWithdraw {
		eventType = EventFundsWithdrawn
	}
	id := strconv.FormatInt(op.UserID, 10)
	return &AccountEvent{
		BaseEvent:  events.NewBaseEvent(eventType, AggregateType, id).WithUserID(id),
		UserID:     op.UserID,
		Amount:     op.Amount.StringFixed(2),
		NewBalance: op.NewBalance.StringFixed(2),
	}
}
