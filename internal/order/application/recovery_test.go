package application

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/ordersaga/framework/saga"
	"github.com/akriventsev/ordersaga/internal/order/domain"
)

// stuckSaga сохраняет сагу в заданном статусе, как после падения процесса
func stuckSaga(t *testing.T, f *fixture, status saga.SagaStatus, updatedAt time.Time, values map[string]interface{}) *saga.BaseSaga {
	t.Helper()

	definition, err := f.orchestrator.Registry().GetSaga(SagaName)
	require.NoError(t, err)

	sagaCtx := saga.NewSagaContext()
	for k, v := range values {
		sagaCtx.Set(k, v)
	}
	sagaCtx.SetTimestamps(updatedAt, updatedAt)

	instance, err := saga.RestoreBaseSaga("", definition, sagaCtx, status, StepWithdrawFunds, nil, updatedAt, nil,
		saga.Options{Persistence: f.persistence})
	require.NoError(t, err)
	require.NoError(t, f.persistence.Save(context.Background(), instance))
	return instance
}

func insertOrder(t *testing.T, f *fixture) *domain.Order {
	t.Helper()
	order, err := domain.NewOrder(1, decimal.RequireFromString("50"), "Laptop")
	require.NoError(t, err)
	_, err = f.orders.Insert(context.Background(), order)
	require.NoError(t, err)
	return order
}

func orderValues(order *domain.Order, withdrawn bool) map[string]interface{} {
	return map[string]interface{}{
		KeyUserID:         order.UserID,
		KeyPrice:          order.Price.StringFixed(2),
		KeyProductName:    order.ProductName,
		KeyOrderID:        order.ID,
		KeyOrderStatus:    string(domain.StatusNew),
		KeyFundsWithdrawn: withdrawn,
	}
}

func TestRecoverer_FinalizesWithdrawnOrder(t *testing.T) {
	f := newFixture("100")
	f.orders.failOnce[domain.StatusPaid] = errDatabaseDown

	_, err := f.service.CreateOrder(context.Background(), 1, decimal.RequireFromString("50"), "Laptop")
	var failure *OrderFailure
	require.ErrorAs(t, err, &failure)

	recoverer := NewRecoverer(f.orchestrator, f.deps, time.Minute)
	n, err := recoverer.RecoverOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, domain.StatusPaid, f.orders.status(failure.OrderID))
	assert.Contains(t, f.notifier.sent(), "Order 1 paid successfully. Amount: $50.00")

	status, err := f.orchestrator.GetStatus(context.Background(), failure.SagaID)
	require.NoError(t, err)
	assert.Equal(t, saga.SagaStatusResolved, status)

	n, err = recoverer.RecoverOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecoverer_CancelsStaleRunningSaga(t *testing.T) {
	f := newFixture("100")
	order := insertOrder(t, f)
	instance := stuckSaga(t, f, saga.SagaStatusRunning, time.Now().Add(-time.Hour), orderValues(order, false))

	recoverer := NewRecoverer(f.orchestrator, f.deps, time.Minute)
	n, err := recoverer.RecoverOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, domain.StatusCancelled, f.orders.status(order.ID))
	assert.Equal(t, []string{"Order 1 cancelled due to payment processing error"}, f.notifier.sent())
	assert.Equal(t, saga.SagaStatusResolved, instance.Status())
	assert.Equal(t, string(domain.StatusCancelled), instance.Context().GetString(KeyOrderStatus))
}

func TestRecoverer_SkipsFreshRunningSaga(t *testing.T) {
	f := newFixture("100")
	order := insertOrder(t, f)
	instance := stuckSaga(t, f, saga.SagaStatusRunning, time.Now(), orderValues(order, false))

	recoverer := NewRecoverer(f.orchestrator, f.deps, time.Minute)
	n, err := recoverer.RecoverOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, domain.StatusNew, f.orders.status(order.ID))
	assert.Equal(t, saga.SagaStatusRunning, instance.Status())

	recoverer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	n, err = recoverer.RecoverOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecoverer_NoOrderCreated(t *testing.T) {
	f := newFixture("100")
	instance := stuckSaga(t, f, saga.SagaStatusFailed, time.Now(), map[string]interface{}{KeyUserID: int64(1)})

	recoverer := NewRecoverer(f.orchestrator, f.deps, time.Minute)
	n, err := recoverer.RecoverOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, saga.SagaStatusResolved, instance.Status())
	assert.Empty(t, f.notifier.sent())

	history := instance.GetHistory()
	require.NotEmpty(t, history)
	assert.Equal(t, "no order was created", history[len(history)-1].Error)
}

func TestRecoverer_TerminalOrderLeftAsIs(t *testing.T) {
	f := newFixture("100")
	order := insertOrder(t, f)
	require.NoError(t, f.orders.UpdateStatus(context.Background(), order.ID, domain.StatusCancelled))
	instance := stuckSaga(t, f, saga.SagaStatusFailed, time.Now(), orderValues(order, true))

	recoverer := NewRecoverer(f.orchestrator, f.deps, time.Minute)
	n, err := recoverer.RecoverOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.StatusCancelled, f.orders.status(order.ID))
	assert.Equal(t, saga.SagaStatusResolved, instance.Status())
	assert.Empty(t, f.notifier.sent())
}

func TestRecoverer_RetriesOnStoreError(t *testing.T) {
	f := newFixture("100")
	order := insertOrder(t, f)
	f.orders.failOnce[domain.StatusCancelled] = errDatabaseDown
	instance := stuckSaga(t, f, saga.SagaStatusFailed, time.Now(), orderValues(order, false))

	recoverer := NewRecoverer(f.orchestrator, f.deps, time.Minute)
	n, err := recoverer.RecoverOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, saga.SagaStatusFailed, instance.Status())

	n, err = recoverer.RecoverOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.StatusCancelled, f.orders.status(order.ID))
}

func TestRecoverer_RunStopsOnCancel(t *testing.T) {
	f := newFixture("100")
	order := insertOrder(t, f)
	stuckSaga(t, f, saga.SagaStatusFailed, time.Now(), orderValues(order, false))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewRecoverer(f.orchestrator, f.deps, time.Minute).Run(ctx, time.Hour)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return f.orders.status(order.ID) == domain.StatusCancelled
	}, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("recoverer did not stop")
	}
}
