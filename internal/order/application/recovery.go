package application

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/akriventsev/ordersaga/framework/core"
	"github.com/akriventsev/ordersaga/framework/events"
	"github.com/akriventsev/ordersaga/framework/saga"
	"github.com/akriventsev/ordersaga/internal/order/domain"
)

// Recoverer доводит до терминального статуса заказы, чьи саги упали
// или зависли: списание зафиксировано -> paid, иначе -> cancelled.
type Recoverer struct {
	orchestrator *saga.Orchestrator
	orders       OrderRepository
	notifier     Notifier
	publisher    events.EventPublisher
	staleAfter   time.Duration
	now          func() time.Time
}

// NewRecoverer создает recoverer
func NewRecoverer(orchestrator *saga.Orchestrator, deps SagaDeps, staleAfter time.Duration) *Recoverer {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Recoverer{
		orchestrator: orchestrator,
		orders:       deps.Orders,
		notifier:     deps.Notifier,
		publisher:    publisher,
		staleAfter:   staleAfter,
		now:          time.Now,
	}
}

// Run выполняет восстановление сразу и затем каждые interval до отмены ctx
func (r *Recoverer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if n, err := r.RecoverOnce(ctx); err != nil {
			log.Printf("[order-recovery] pass failed: %v", err)
		} else if n > 0 {
			log.Printf("[order-recovery] resolved %d sagas", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RecoverOnce обрабатывает все незавершенные саги и возвращает число разрешенных
func (r *Recoverer) RecoverOnce(ctx context.Context) (int, error) {
	sagas, err := r.orchestrator.ListByStatus(ctx, saga.SagaStatusFailed, saga.SagaStatusRunning, saga.SagaStatusCompensating)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, instance := range sagas {
		if instance.Definition().Name() != SagaName || !r.due(instance) {
			continue
		}
		note, err := r.recover(ctx, instance.Context())
		if err != nil {
			log.Printf("[order-recovery] saga %s: %v", instance.ID(), err)
			continue
		}
		if err := r.orchestrator.Resolve(ctx, instance, note); err != nil {
			log.Printf("[order-recovery] failed to resolve saga %s: %v", instance.ID(), err)
			continue
		}
		log.Printf("[order-recovery] saga %s resolved: %s", instance.ID(), note)
		resolved++
	}
	return resolved, nil
}

// due сообщает, пора ли трогать сагу. Running и compensating саги
// могут выполняться прямо сейчас, поэтому ждем staleAfter с последнего изменения.
func (r *Recoverer) due(instance saga.Saga) bool {
	if instance.Status() == saga.SagaStatusFailed {
		return true
	}
	return r.now().Sub(instance.Context().Metadata().UpdatedAt) >= r.staleAfter
}

// recover финализирует заказ саги и возвращает заметку для журнала
func (r *Recoverer) recover(ctx context.Context, sagaCtx saga.SagaContext) (string, error) {
	orderID := sagaCtx.GetInt64(KeyOrderID)
	if orderID == 0 {
		return "no order was created", nil
	}

	target := domain.StatusCancelled
	if sagaCtx.GetBool(KeyFundsWithdrawn) {
		target = domain.StatusPaid
	}

	if err := r.orders.UpdateStatus(ctx, orderID, target); err != nil {
		switch core.CodeOf(err) {
		case core.ErrConflict, core.ErrNotFound:
			return fmt.Sprintf("order %d left as is: %v", orderID, err), nil
		default:
			return "", fmt.Errorf("failed to finalize order %d: %w", orderID, err)
		}
	}

	sagaCtx.Set(KeyOrderStatus, string(target))
	order := orderFromContext(sagaCtx)
	if target == domain.StatusPaid {
		publishOrderEvent(ctx, r.publisher, domain.EventOrderPaid, order, "")
		notify(ctx, r.notifier, order.UserID, paidNotification(orderID, order.Price))
	} else {
		reason := sagaCtx.GetString(KeyCancelReason)
		if reason == "" {
			reason = ReasonPaymentError
		}
		publishOrderEvent(ctx, r.publisher, domain.EventOrderCancelled, order, reason)
		notify(ctx, r.notifier, order.UserID, cancelledNotification(orderID, reason))
	}
	return fmt.Sprintf("order %d marked %s", orderID, target), nil
}
