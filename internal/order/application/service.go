package application

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"github.com/akriventsev/ordersaga/framework/core"
	"github.com/akriventsev/ordersaga/framework/observability"
	"github.com/akriventsev/ordersaga/framework/saga"
	"github.com/akriventsev/ordersaga/internal/order/domain"
)

// DefaultListLimit размер страницы списка заказов по умолчанию
const DefaultListLimit = 100

// OrderResult итог саги для клиента
type OrderResult struct {
	OrderID     int64
	SagaID      string
	UserID      int64
	Price       decimal.Decimal
	ProductName string
	Status      domain.Status
	Message     string
}

// OrderFailure ошибка после создания заказа: клиент получает код ошибки,
// но ответ по-прежнему называет заказ и его статус.
type OrderFailure struct {
	OrderID int64
	SagaID  string
	Status  domain.Status
	Err     error
}

func (e *OrderFailure) Error() string {
	return fmt.Sprintf("order %d (%s): %v", e.OrderID, e.Status, e.Err)
}

func (e *OrderFailure) Unwrap() error {
	return e.Err
}

// OrderService сценарии order-service
type OrderService struct {
	orchestrator *saga.Orchestrator
	orders       OrderRepository
	locker       UserLocker
}

// NewOrderService создает сервис. Определение саги должно быть
// зарегистрировано в реестре orchestrator под именем SagaName.
func NewOrderService(orchestrator *saga.Orchestrator, orders OrderRepository) *OrderService {
	return &OrderService{orchestrator: orchestrator, orders: orders}
}

// WithLocker включает сериализацию саг одного пользователя
func (s *OrderService) WithLocker(locker UserLocker) *OrderService {
	s.locker = locker
	return s
}

// CreateOrder проводит сагу создания заказа за один синхронный проход
func (s *OrderService) CreateOrder(ctx context.Context, userID int64, price decimal.Decimal, productName string) (*OrderResult, error) {
	order, err := domain.NewOrder(userID, price, productName)
	if err != nil {
		return nil, err
	}

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, userID)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	sagaCtx := saga.NewSagaContext()
	sagaCtx.Set(KeyUserID, order.UserID)
	sagaCtx.Set(KeyPrice, order.Price.StringFixed(2))
	sagaCtx.Set(KeyProductName, order.ProductName)
	if correlationID := observability.ExtractCorrelationID(ctx); correlationID != "" {
		sagaCtx.SetCorrelationID(correlationID)
	}

	// отключение клиента не должно прерывать сагу на середине
	instance, sagaErr := s.orchestrator.Start(context.WithoutCancel(ctx), SagaName, sagaCtx)
	if instance == nil {
		return nil, core.Wrap(sagaErr, core.ErrInternal, "Failed to create order")
	}

	result := &OrderResult{
		OrderID:     sagaCtx.GetInt64(KeyOrderID),
		SagaID:      instance.ID(),
		UserID:      order.UserID,
		Price:       order.Price,
		ProductName: order.ProductName,
		Status:      domain.Status(sagaCtx.GetString(KeyOrderStatus)),
	}

	if sagaErr == nil {
		result.Message = paidMessage(order.Price)
		return result, nil
	}
	if result.OrderID == 0 {
		return nil, createFailure(sagaErr)
	}

	switch sagaCtx.GetString(KeyCancelReason) {
	case ReasonInsufficientFunds:
		if result.Status == domain.StatusCancelled {
			result.Message = insufficientFundsMessage
			return result, nil
		}
		log.Printf("[order-service] saga %s: order %d not cancelled after insufficient funds: %v", instance.ID(), result.OrderID, sagaErr)
		return nil, &OrderFailure{OrderID: result.OrderID, SagaID: result.SagaID, Status: result.Status,
			Err: core.Wrap(sagaErr, core.ErrInternal, cancellationPendingMessage)}
	case ReasonPaymentError:
		return nil, &OrderFailure{OrderID: result.OrderID, SagaID: result.SagaID, Status: result.Status, Err: paymentFailure(sagaErr)}
	}
	log.Printf("[order-service] saga %s for order %d ended %s: %v", instance.ID(), result.OrderID, instance.Status(), sagaErr)
	return nil, &OrderFailure{OrderID: result.OrderID, SagaID: result.SagaID, Status: result.Status, Err: sagaErr}
}

// createFailure ошибка саги, не успевшей создать заказ
func createFailure(err error) error {
	if fe, ok := core.AsFrameworkError(err); ok {
		return fe
	}
	return core.Wrap(err, core.ErrInternal, "Failed to create order: "+err.Error())
}

// paymentFailure добавляет к ошибке списания пояснение, что заказ создан
func paymentFailure(err error) error {
	if fe, ok := core.AsFrameworkError(err); ok {
		return core.Wrap(err, fe.Code, PaymentFailedPrefix+fe.Message)
	}
	return core.Wrap(err, core.ErrInternal, PaymentFailedPrefix+"Payment processing failed: internal error")
}

// ListOrders возвращает заказы пользователя; смотреть можно только свои
func (s *OrderService) ListOrders(ctx context.Context, callerID, userID int64, offset, limit int) ([]*domain.Order, error) {
	if userID <= 0 {
		return nil, core.NewError(core.ErrValidationFailed, "User ID must be greater than 0")
	}
	if callerID != userID {
		return nil, core.NewError(core.ErrForbidden, "You can only access your own orders")
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.orders.ListByUser(ctx, userID, offset, limit)
}

// GetSaga возвращает состояние саги и историю шагов
func (s *OrderService) GetSaga(ctx context.Context, sagaID string) (saga.Saga, error) {
	instance, err := s.orchestrator.Load(ctx, sagaID)
	if err != nil {
		if errors.Is(err, saga.ErrSagaNotFound) {
			return nil, core.Errorf(core.ErrNotFound, "Saga %s not found", sagaID)
		}
		return nil, core.Wrap(err, core.ErrInternal, "failed to load saga")
	}
	return instance, nil
}
