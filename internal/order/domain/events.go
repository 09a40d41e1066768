package domain

import (
	"strconv"

	"github.com/akriventsev/ordersaga/framework/events"
)

// AggregateType тип агрегата для событий заказа
const AggregateType = "order"

// Типы событий заказа
const (
	EventOrderCreated   = "order.created"
	EventOrderPaid      = "order.paid"
	EventOrderCancelled = "order.cancelled"
)

// OrderEvent событие изменения заказа
type OrderEvent struct {
	*events.BaseEvent
	OrderID     int64  `json:"order_id"`
	UserID      int64  `json:"user_id"`
	Price       string `json:"price"`
	ProductName string `json:"product_name"`
	Status      Status `json:"status"`
	Reason      string `json:"reason,omitempty"`
}

// NewOrderEvent создает событие по текущему состоянию заказа
func NewOrderEvent(eventType string, order *Order, reason string) *OrderEvent {
	base := events.NewBaseEvent(eventType, AggregateType, strconv.FormatInt(order.ID, 10)).
		WithUserID(strconv.FormatInt(order.UserID, 10))
	return &OrderEvent{
		BaseEvent:   base,
		OrderID:     order.ID,
		UserID:      order.UserID,
		Price:       order.Price.StringFixed(2),
		ProductName: order.ProductName,
		Status:      order.Status,
		Reason:      reason,
	}
}
