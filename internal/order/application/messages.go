package application

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Причины отмены заказа, сохраняемые в контексте саги
const (
	ReasonInsufficientFunds = "insufficient_funds"
	ReasonBalanceError      = "balance_error"
	ReasonPaymentError      = "payment_error"
)

// PaymentFailedPrefix префикс ответа, когда заказ создан, но списание не прошло
const PaymentFailedPrefix = "Order created but payment failed: "

func paidMessage(price decimal.Decimal) string {
	return fmt.Sprintf("Order created and paid successfully. $%s deducted from your account.", price.StringFixed(2))
}

const insufficientFundsMessage = "Order cancelled due to insufficient funds"

// cancellationPendingMessage статус заказа не удалось сменить на cancelled
const cancellationPendingMessage = "Insufficient funds: order cancellation pending"

func paidNotification(orderID int64, price decimal.Decimal) string {
	return fmt.Sprintf("Order %d paid successfully. Amount: $%s", orderID, price.StringFixed(2))
}

func cancelledNotification(orderID int64, reason string) string {
	if reason == ReasonInsufficientFunds {
		return fmt.Sprintf("Order %d cancelled, insufficient funds", orderID)
	}
	return fmt.Sprintf("Order %d cancelled due to payment processing error", orderID)
}
