package application

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/ordersaga/framework/core"
	"github.com/akriventsev/ordersaga/framework/saga"
	"github.com/akriventsev/ordersaga/internal/order/domain"
)

func TestCreateOrder_Paid(t *testing.T) {
	f := newFixture("100")

	result, err := f.service.CreateOrder(context.Background(), 1, decimal.RequireFromString("50"), "Laptop")
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.OrderID)
	assert.Equal(t, domain.StatusPaid, result.Status)
	assert.Equal(t, "Order created and paid successfully. $50.00 deducted from your account.", result.Message)
	assert.Equal(t, domain.StatusPaid, f.orders.status(1))
	require.Len(t, f.balance.withdrawals, 1)
	assert.True(t, f.balance.withdrawals[0].Equal(decimal.RequireFromString("50")))
	assert.True(t, f.balance.balance.Equal(decimal.RequireFromString("50")))
	assert.Equal(t, []string{"Order 1 paid successfully. Amount: $50.00"}, f.notifier.sent())
	assert.Equal(t, []string{domain.EventOrderCreated, domain.EventOrderPaid}, *f.eventTypes)

	status, err := f.orchestrator.GetStatus(context.Background(), result.SagaID)
	require.NoError(t, err)
	assert.Equal(t, saga.SagaStatusCompleted, status)
}

func TestCreateOrder_ExactBalance(t *testing.T) {
	f := newFixture("50.00")

	result, err := f.service.CreateOrder(context.Background(), 1, decimal.RequireFromString("50"), "Laptop")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, result.Status)
	assert.True(t, f.balance.balance.IsZero())
}

func TestCreateOrder_InsufficientFunds(t *testing.T) {
	f := newFixture("100")

	result, err := f.service.CreateOrder(context.Background(), 1, decimal.RequireFromString("150"), "TV")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCancelled, result.Status)
	assert.Equal(t, "Order cancelled due to insufficient funds", result.Message)
	assert.Equal(t, domain.StatusCancelled, f.orders.status(result.OrderID))
	assert.Empty(t, f.balance.withdrawals)
	assert.True(t, f.balance.balance.Equal(decimal.RequireFromString("100")))
	assert.Equal(t, []string{"Order 1 cancelled, insufficient funds"}, f.notifier.sent())
	assert.Equal(t, []string{domain.EventOrderCreated, domain.EventOrderCancelled}, *f.eventTypes)

	status, err := f.orchestrator.GetStatus(context.Background(), result.SagaID)
	require.NoError(t, err)
	assert.Equal(t, saga.SagaStatusCompensated, status)
}

func TestCreateOrder_BillingUnavailable(t *testing.T) {
	f := newFixture("100")
	f.balance.getErr = core.NewError(core.ErrServiceUnavailable, "Failed to connect to billing service: connection refused")

	result, err := f.service.CreateOrder(context.Background(), 1, decimal.RequireFromString("50"), "Laptop")
	require.Error(t, err)
	assert.Nil(t, result)

	var failure *OrderFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, int64(1), failure.OrderID)
	assert.Equal(t, domain.StatusCancelled, failure.Status)
	assert.Equal(t, core.ErrServiceUnavailable, core.CodeOf(err))

	assert.Equal(t, domain.StatusCancelled, f.orders.status(1))
	assert.Empty(t, f.balance.withdrawals)
	assert.Equal(t, []string{"Order 1 cancelled due to payment processing error"}, f.notifier.sent())
}

func TestCreateOrder_MalformedBalanceCancels(t *testing.T) {
	f := newFixture("100")
	f.balance.getErr = core.NewError(core.ErrInternal, "Failed to get user balance: balance is missing")

	_, err := f.service.CreateOrder(context.Background(), 1, decimal.RequireFromString("50"), "Laptop")
	require.Error(t, err)

	var failure *OrderFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, domain.StatusCancelled, failure.Status)
	assert.Equal(t, core.ErrInternal, core.CodeOf(err))

	fe, ok := core.AsFrameworkError(err)
	require.True(t, ok)
	assert.Equal(t, "Failed to get user balance: balance is missing", fe.Message)

	assert.Equal(t, domain.StatusCancelled, f.orders.status(1))
	assert.Empty(t, f.balance.withdrawals)
}

func TestCreateOrder_InsufficientFundsCancelFails(t *testing.T) {
	f := newFixture("100")
	f.orders.failOnce[domain.StatusCancelled] = errDatabaseDown

	result, err := f.service.CreateOrder(context.Background(), 1, decimal.RequireFromString("150"), "Laptop")
	require.Error(t, err)
	assert.Nil(t, result)

	var failure *OrderFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, domain.StatusNew, failure.Status)
	assert.Equal(t, core.ErrInternal, core.CodeOf(err))

	fe, ok := core.AsFrameworkError(err)
	require.True(t, ok)
	assert.Equal(t, "Insufficient funds: order cancellation pending", fe.Message)
	assert.NotContains(t, fe.Message, "cancelled")

	assert.Equal(t, domain.StatusNew, f.orders.status(1))
	assert.Empty(t, f.balance.withdrawals)

	status, err := f.orchestrator.GetStatus(context.Background(), failure.SagaID)
	require.NoError(t, err)
	assert.Equal(t, saga.SagaStatusFailed, status)
}

func TestCreateOrder_WithdrawRejected(t *testing.T) {
	f := newFixture("100")
	f.balance.withdrawErr = core.NewError(core.ErrInsufficientFunds, "Insufficient funds or invalid amount")

	_, err := f.service.CreateOrder(context.Background(), 1, decimal.RequireFromString("50"), "Laptop")
	require.Error(t, err)

	var failure *OrderFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, domain.StatusCancelled, failure.Status)

	fe, ok := core.AsFrameworkError(err)
	require.True(t, ok)
	assert.Equal(t, core.ErrInsufficientFunds, fe.Code)
	assert.Equal(t, "Order created but payment failed: Insufficient funds or invalid amount", fe.Message)

	assert.Equal(t, domain.StatusCancelled, f.orders.status(1))
	assert.Equal(t, []string{"Order 1 cancelled due to payment processing error"}, f.notifier.sent())
}

func TestCreateOrder_WithdrawUnavailable(t *testing.T) {
	f := newFixture("100")
	f.balance.withdrawErr = core.NewError(core.ErrServiceUnavailable, "Failed to process payment: billing service unavailable")

	_, err := f.service.CreateOrder(context.Background(), 1, decimal.RequireFromString("50"), "Laptop")
	require.Error(t, err)

	fe, ok := core.AsFrameworkError(err)
	require.True(t, ok)
	assert.Equal(t, core.ErrServiceUnavailable, fe.Code)
	assert.True(t, strings.HasPrefix(fe.Message, PaymentFailedPrefix))
	assert.Equal(t, domain.StatusCancelled, f.orders.status(1))
}

func TestCreateOrder_NotificationFailureIgnored(t *testing.T) {
	f := newFixture("100")
	f.notifier.err = core.NewError(core.ErrServiceUnavailable, "notification service is down")

	result, err := f.service.CreateOrder(context.Background(), 1, decimal.RequireFromString("50"), "Laptop")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, result.Status)
	assert.Len(t, f.notifier.sent(), 1)

	result, err = f.service.CreateOrder(context.Background(), 1, decimal.RequireFromString("500"), "Car")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, result.Status)
}

func TestCreateOrder_ValidationCreatesNothing(t *testing.T) {
	f := newFixture("100")

	tests := []struct {
		name    string
		userID  int64
		price   string
		product string
	}{
		{"zero price", 1, "0", "Laptop"},
		{"negative price", 1, "-5", "Laptop"},
		{"empty product", 1, "10", "   "},
		{"bad user", 0, "10", "Laptop"},
		{"long product", 1, "10", strings.Repeat("x", domain.MaxProductNameLength+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.CreateOrder(context.Background(), tt.userID, decimal.RequireFromString(tt.price), tt.product)
			require.Error(t, err)
			assert.Equal(t, core.ErrValidationFailed, core.CodeOf(err))
		})
	}
	assert.Zero(t, f.orders.count())
	assert.Empty(t, f.notifier.sent())
}

func TestCreateOrder_InsertFails(t *testing.T) {
	f := newFixture("100")
	f.orders.insertErr = errDatabaseDown

	result, err := f.service.CreateOrder(context.Background(), 1, decimal.RequireFromString("50"), "Laptop")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, core.ErrInternal, core.CodeOf(err))

	var failure *OrderFailure
	assert.False(t, errors.As(err, &failure))
	assert.Empty(t, f.balance.withdrawals)
	assert.Empty(t, f.notifier.sent())
}

func TestCreateOrder_FinalizeFailsAfterWithdraw(t *testing.T) {
	f := newFixture("100")
	f.orders.failOnce[domain.StatusPaid] = errDatabaseDown

	_, err := f.service.CreateOrder(context.Background(), 1, decimal.RequireFromString("50"), "Laptop")
	require.Error(t, err)

	var failure *OrderFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, domain.StatusNew, failure.Status)
	assert.Equal(t, domain.StatusNew, f.orders.status(1))
	require.Len(t, f.balance.withdrawals, 1)

	status, err := f.orchestrator.GetStatus(context.Background(), failure.SagaID)
	require.NoError(t, err)
	assert.Equal(t, saga.SagaStatusFailed, status)
}

func TestCreateOrder_LockConflict(t *testing.T) {
	f := newFixture("100")
	locker := &mockLocker{err: core.NewError(core.ErrConflict, "Another order for this user is being processed")}
	f.service.WithLocker(locker)

	_, err := f.service.CreateOrder(context.Background(), 1, decimal.RequireFromString("50"), "Laptop")
	require.Error(t, err)
	assert.Equal(t, core.ErrConflict, core.CodeOf(err))
	assert.Zero(t, f.orders.count())
}

func TestCreateOrder_LockReleased(t *testing.T) {
	f := newFixture("100")
	locker := &mockLocker{}
	f.service.WithLocker(locker)

	_, err := f.service.CreateOrder(context.Background(), 1, decimal.RequireFromString("50"), "Laptop")
	require.NoError(t, err)
	assert.Equal(t, 1, locker.acquired)
	assert.Equal(t, 1, locker.released)
}

func TestListOrders(t *testing.T) {
	f := newFixture("1000")
	for _, name := range []string{"A", "B", "C"} {
		_, err := f.service.CreateOrder(context.Background(), 1, decimal.RequireFromString("10"), name)
		require.NoError(t, err)
	}
	_, err := f.service.CreateOrder(context.Background(), 2, decimal.RequireFromString("10"), "Other")
	require.NoError(t, err)

	orders, err := f.service.ListOrders(context.Background(), 1, 1, 0, 0)
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, "C", orders[0].ProductName)

	orders, err = f.service.ListOrders(context.Background(), 1, 1, 1, 1)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "B", orders[0].ProductName)

	orders, err = f.service.ListOrders(context.Background(), 3, 3, 0, 10)
	require.NoError(t, err)
	assert.NotNil(t, orders)
	assert.Empty(t, orders)
}

func TestListOrders_Forbidden(t *testing.T) {
	f := newFixture("100")

	_, err := f.service.ListOrders(context.Background(), 1, 2, 0, 10)
	require.Error(t, err)
	assert.Equal(t, core.ErrForbidden, core.CodeOf(err))

	_, err = f.service.ListOrders(context.Background(), 1, 0, 0, 10)
	assert.Equal(t, core.ErrValidationFailed, core.CodeOf(err))
}

func TestGetSaga(t *testing.T) {
	f := newFixture("100")
	result, err := f.service.CreateOrder(context.Background(), 1, decimal.RequireFromString("50"), "Laptop")
	require.NoError(t, err)

	instance, err := f.service.GetSaga(context.Background(), result.SagaID)
	require.NoError(t, err)
	assert.Equal(t, saga.SagaStatusCompleted, instance.Status())
	assert.NotEmpty(t, instance.GetHistory())

	_, err = f.service.GetSaga(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, core.ErrNotFound, core.CodeOf(err))
}
