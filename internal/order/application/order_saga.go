package application

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"github.com/akriventsev/ordersaga/framework/events"
	"github.com/akriventsev/ordersaga/framework/saga"
	"github.com/akriventsev/ordersaga/internal/order/domain"
)

// SagaName имя определения саги создания заказа
const SagaName = "order_creation"

// Имена шагов саги
const (
	StepCreateOrder    = "create_order"
	StepCheckBalance   = "check_balance"
	StepVerifyFunds    = "verify_funds"
	StepWithdrawFunds  = "withdraw_funds"
	StepFinalizeOrder  = "finalize_order"
	StepNotifyCustomer = "notify_customer"
)

// Ключи контекста саги
const (
	KeyUserID         = "user_id"
	KeyPrice          = "price"
	KeyProductName    = "product_name"
	KeyOrderID        = "order_id"
	KeyOrderStatus    = "order_status"
	KeyBalance        = "balance"
	KeyFundsWithdrawn = "funds_withdrawn"
	KeyCancelReason   = "cancel_reason"
)

// SagaDeps зависимости шагов саги
type SagaDeps struct {
	Orders    OrderRepository
	Balance   BalanceService
	Notifier  Notifier
	Publisher events.EventPublisher
}

// NewOrderSagaDefinition собирает сагу:
// create_order -> check_balance -> verify_funds -> withdraw_funds -> finalize_order -> notify_customer.
// Компенсацию имеет только create_order: заказ не удаляется, а отменяется.
func NewOrderSagaDefinition(deps SagaDeps) (saga.SagaDefinition, error) {
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	return saga.NewSagaBuilder(SagaName).
		WithRetryPolicy(saga.NoRetry()).
		AddStep(NewCreateOrderStep(deps)).
		AddStep(NewCheckBalanceStep(deps)).
		AddStep(NewVerifyFundsStep()).
		AddStep(NewWithdrawFundsStep(deps)).
		AddStep(NewFinalizeOrderStep(deps)).
		AddStep(NewNotifyCustomerStep(deps)).
		Build()
}

// CreateOrderStep сохраняет заказ в статусе new
type CreateOrderStep struct {
	*saga.BaseStep
	deps SagaDeps
}

// NewCreateOrderStep создает шаг создания заказа
func NewCreateOrderStep(deps SagaDeps) *CreateOrderStep {
	step := &CreateOrderStep{BaseStep: saga.NewBaseStep(StepCreateOrder), deps: deps}

	step.WithExecute(func(ctx context.Context, sagaCtx saga.SagaContext) error {
		price, err := decimal.NewFromString(sagaCtx.GetString(KeyPrice))
		if err != nil {
			return fmt.Errorf("invalid price in saga context: %w", err)
		}
		order, err := domain.NewOrder(sagaCtx.GetInt64(KeyUserID), price, sagaCtx.GetString(KeyProductName))
		if err != nil {
			return err
		}
		if _, err := deps.Orders.Insert(ctx, order); err != nil {
			return err
		}

		sagaCtx.Set(KeyOrderID, order.ID)
		sagaCtx.Set(KeyOrderStatus, string(order.Status))
		publishOrderEvent(ctx, deps.Publisher, domain.EventOrderCreated, order, "")
		return nil
	})

	step.WithCompensate(func(ctx context.Context, sagaCtx saga.SagaContext) error {
		orderID := sagaCtx.GetInt64(KeyOrderID)
		if sagaCtx.GetBool(KeyFundsWithdrawn) {
			// деньги уже списаны, отмена противоречила бы billing; заказ доведет recovery
			return fmt.Errorf("order %d: funds already withdrawn, left for recovery", orderID)
		}

		reason := sagaCtx.GetString(KeyCancelReason)
		if reason == "" {
			reason = ReasonPaymentError
		}
		if err := deps.Orders.UpdateStatus(ctx, orderID, domain.StatusCancelled); err != nil {
			return fmt.Errorf("failed to cancel order %d: %w", orderID, err)
		}
		sagaCtx.Set(KeyOrderStatus, string(domain.StatusCancelled))

		order := orderFromContext(sagaCtx)
		publishOrderEvent(ctx, deps.Publisher, domain.EventOrderCancelled, order, reason)
		notify(ctx, deps.Notifier, order.UserID, cancelledNotification(orderID, reason))
		return nil
	})

	return step
}

// CheckBalanceStep читает баланс пользователя
type CheckBalanceStep struct {
	*saga.BaseStep
}

// NewCheckBalanceStep создает шаг чтения баланса
func NewCheckBalanceStep(deps SagaDeps) *CheckBalanceStep {
	step := &CheckBalanceStep{BaseStep: saga.NewBaseStep(StepCheckBalance)}
	step.WithExecute(func(ctx context.Context, sagaCtx saga.SagaContext) error {
		balance, err := deps.Balance.GetBalance(ctx, sagaCtx.GetInt64(KeyUserID))
		if err != nil {
			sagaCtx.Set(KeyCancelReason, ReasonBalanceError)
			return err
		}
		sagaCtx.Set(KeyBalance, balance.StringFixed(2))
		return nil
	})
	return step
}

// VerifyFundsStep сравнивает цену заказа со снимком баланса
type VerifyFundsStep struct {
	*saga.BaseStep
}

// NewVerifyFundsStep создает шаг проверки средств
func NewVerifyFundsStep() *VerifyFundsStep {
	step := &VerifyFundsStep{BaseStep: saga.NewBaseStep(StepVerifyFunds)}
	step.WithExecute(func(ctx context.Context, sagaCtx saga.SagaContext) error {
		price, err := decimal.NewFromString(sagaCtx.GetString(KeyPrice))
		if err != nil {
			return fmt.Errorf("invalid price in saga context: %w", err)
		}
		balance, err := decimal.NewFromString(sagaCtx.GetString(KeyBalance))
		if err != nil {
			return fmt.Errorf("invalid balance in saga context: %w", err)
		}
		if price.GreaterThan(balance) {
			sagaCtx.Set(KeyCancelReason, ReasonInsufficientFunds)
			return domain.ErrInsufficientFunds
		}
		return nil
	})
	return step
}

// WithdrawFundsStep списывает цену заказа. Не повторяется: результат
// списания после таймаута неизвестен.
type WithdrawFundsStep struct {
	*saga.BaseStep
}

// NewWithdrawFundsStep создает шаг списания
func NewWithdrawFundsStep(deps SagaDeps) *WithdrawFundsStep {
	step := &WithdrawFundsStep{BaseStep: saga.NewBaseStep(StepWithdrawFunds)}
	step.WithExecute(func(ctx context.Context, sagaCtx saga.SagaContext) error {
		price, err := decimal.NewFromString(sagaCtx.GetString(KeyPrice))
		if err != nil {
			return fmt.Errorf("invalid price in saga context: %w", err)
		}
		if err := deps.Balance.Withdraw(ctx, sagaCtx.GetInt64(KeyUserID), price); err != nil {
			sagaCtx.Set(KeyCancelReason, ReasonPaymentError)
			return err
		}
		sagaCtx.Set(KeyFundsWithdrawn, true)
		return nil
	})
	step.WithRetry(saga.NoRetry())
	return step
}

// FinalizeOrderStep переводит оплаченный заказ в paid
type FinalizeOrderStep struct {
	*saga.BaseStep
}

// NewFinalizeOrderStep создает шаг финализации
func NewFinalizeOrderStep(deps SagaDeps) *FinalizeOrderStep {
	step := &FinalizeOrderStep{BaseStep: saga.NewBaseStep(StepFinalizeOrder)}
	step.WithGuard(func(ctx context.Context, sagaCtx saga.SagaContext) bool {
		return sagaCtx.GetBool(KeyFundsWithdrawn)
	})
	step.WithExecute(func(ctx context.Context, sagaCtx saga.SagaContext) error {
		orderID := sagaCtx.GetInt64(KeyOrderID)
		if err := deps.Orders.UpdateStatus(ctx, orderID, domain.StatusPaid); err != nil {
			return err
		}
		sagaCtx.Set(KeyOrderStatus, string(domain.StatusPaid))
		publishOrderEvent(ctx, deps.Publisher, domain.EventOrderPaid, orderFromContext(sagaCtx), "")
		return nil
	})
	return step
}

// NotifyCustomerStep сообщает об успешной оплате. Ошибки доставки
// только логируются и не меняют исход саги.
type NotifyCustomerStep struct {
	*saga.BaseStep
}

// NewNotifyCustomerStep создает шаг уведомления
func NewNotifyCustomerStep(deps SagaDeps) *NotifyCustomerStep {
	step := &NotifyCustomerStep{BaseStep: saga.NewBaseStep(StepNotifyCustomer)}
	step.WithExecute(func(ctx context.Context, sagaCtx saga.SagaContext) error {
		order := orderFromContext(sagaCtx)
		notify(ctx, deps.Notifier, order.UserID, paidNotification(order.ID, order.Price))
		return nil
	})
	return step
}

// orderFromContext восстанавливает снимок заказа из контекста саги
func orderFromContext(sagaCtx saga.SagaContext) *domain.Order {
	price, _ := decimal.NewFromString(sagaCtx.GetString(KeyPrice))
	return &domain.Order{
		ID:          sagaCtx.GetInt64(KeyOrderID),
		UserID:      sagaCtx.GetInt64(KeyUserID),
		Price:       price,
		ProductName: sagaCtx.GetString(KeyProductName),
		Status:      domain.Status(sagaCtx.GetString(KeyOrderStatus)),
	}
}

func notify(ctx context.Context, notifier Notifier, userID int64, message string) {
	if notifier == nil {
		return
	}
	if err := notifier.Send(ctx, userID, message); err != nil {
		log.Printf("[order-saga] failed to notify user %d: %v", userID, err)
	}
}

func publishOrderEvent(ctx context.Context, publisher events.EventPublisher, eventType string, order *domain.Order, reason string) {
	if err := publisher.Publish(ctx, domain.NewOrderEvent(eventType, order, reason)); err != nil {
		log.Printf("[order-saga] failed to publish %s for order %d: %v", eventType, order.ID, err)
	}
}
