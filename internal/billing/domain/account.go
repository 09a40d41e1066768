// Package domain модель счета billing-service.
package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/akriventsev/ordersaga/framework/core"
)

// Операции над счетом
const (
	OperationDeposit  = "deposit"
	OperationWithdraw = "withdraw"
)

var (
	// ErrAccountNotFound счет не существует
	ErrAccountNotFound = core.NewError(core.ErrNotFound, "Account not found")
	// ErrInsufficientFunds на счете меньше запрошенной суммы
	ErrInsufficientFunds = core.NewError(core.ErrInsufficientFunds, "Insufficient funds")
)

// Account счет пользователя
type Account struct {
	UserID    int64
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Operation результат пополнения или списания
type Operation struct {
	UserID     int64
	Operation  string
	Amount     decimal.Decimal
	NewBalance decimal.Decimal
}

// ValidateUserID проверяет идентификатор владельца счета
func ValidateUserID(userID int64) error {
	if userID <= 0 {
		return core.NewError(core.ErrValidationFailed, "User ID must be greater than 0")
	}
	return nil
}

// NormalizeAmount округляет сумму до копеек и требует ее положительности
func NormalizeAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return decimal.Zero, core.NewError(core.ErrValidationFailed, "Amount must be greater than 0")
	}
	return amount, nil
}
