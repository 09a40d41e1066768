// Package events предоставляет базовые интерфейсы для работы с доменными событиями.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event представляет доменное событие
type Event interface {
	// EventID возвращает уникальный идентификатор события
	EventID() string
	// EventType возвращает тип события
	EventType() string
	// OccurredAt возвращает время возникновения события
	OccurredAt() time.Time
	// AggregateType возвращает тип агрегата (order, saga)
	AggregateType() string
	// AggregateID возвращает идентификатор агрегата
	AggregateID() string
	// Metadata возвращает метаданные события
	Metadata() EventMetadata
}

// EventMetadata метаданные события
type EventMetadata map[string]string

// CorrelationID возвращает correlation ID
func (m EventMetadata) CorrelationID() string {
	return m["correlation_id"]
}

// UserID возвращает ID пользователя
func (m EventMetadata) UserID() string {
	return m["user_id"]
}

// BaseEvent базовая реализация события
type BaseEvent struct {
	eventID       string
	eventType     string
	occurredAt    time.Time
	aggregateType string
	aggregateID   string
	metadata      EventMetadata
}

// NewBaseEvent создает новое базовое событие
func NewBaseEvent(eventType, aggregateType, aggregateID string) *BaseEvent {
	return &BaseEvent{
		eventID:       uuid.New().String(),
		eventType:     eventType,
		occurredAt:    time.Now().UTC(),
		aggregateType: aggregateType,
		aggregateID:   aggregateID,
		metadata:      make(EventMetadata),
	}
}

// WithMetadata добавляет метаданные к событию
func (e *BaseEvent) WithMetadata(key, value string) *BaseEvent {
	e.metadata[key] = value
	return e
}

// WithCorrelationID устанавливает correlation ID
func (e *BaseEvent) WithCorrelationID(id string) *BaseEvent {
	return e.WithMetadata("correlation_id", id)
}

// WithUserID устанавливает user ID
func (e *BaseEvent) WithUserID(id string) *BaseEvent {
	return e.WithMetadata("user_id", id)
}

func (e *BaseEvent) EventID() string         { return e.eventID }
func (e *BaseEvent) EventType() string       { return e.eventType }
func (e *BaseEvent) OccurredAt() time.Time   { return e.occurredAt }
func (e *BaseEvent) AggregateType() string   { return e.aggregateType }
func (e *BaseEvent) AggregateID() string     { return e.aggregateID }
func (e *BaseEvent) Metadata() EventMetadata { return e.metadata }

// EventHandler обработчик доменных событий
type EventHandler interface {
	// Handle обрабатывает событие
	Handle(ctx context.Context, event Event) error
}

// EventHandlerFunc функция-обработчик
type EventHandlerFunc func(ctx context.Context, event Event) error

// Handle реализует EventHandler
func (f EventHandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// EventPublisher публикатор событий
type EventPublisher interface {
	// Publish публикует событие
	Publish(ctx context.Context, event Event) error
}

// EventSubscriber подписчик на события
type EventSubscriber interface {
	// Subscribe подписывается на тип события, "*" означает все события
	Subscribe(eventType string, handler EventHandler) error
}

// EventBus объединяет Publisher и Subscriber
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher отбрасывает все события
type NopPublisher struct{}

// Publish ничего не делает
func (NopPublisher) Publish(context.Context, Event) error { return nil }
