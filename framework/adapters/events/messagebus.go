// Package events предоставляет адаптеры для публикации доменных событий.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/akriventsev/ordersaga/framework/core"
	"github.com/akriventsev/ordersaga/framework/events"
	"github.com/akriventsev/ordersaga/framework/metrics"
	"github.com/akriventsev/ordersaga/framework/transport"
)

// MessageBusEventConfig конфигурация для MessageBus Event Publisher
type MessageBusEventConfig struct {
	Bus           transport.Publisher
	SubjectPrefix string
	RetryPolicy   transport.RetryPolicy
	Metrics       *metrics.Metrics
}

// DefaultMessageBusEventConfig возвращает конфигурацию MessageBus Event Publisher по умолчанию
func DefaultMessageBusEventConfig(bus transport.Publisher) MessageBusEventConfig {
	return MessageBusEventConfig{
		Bus:           bus,
		SubjectPrefix: "events",
		RetryPolicy:   transport.DefaultRetryPolicy(),
	}
}

// Envelope формат события в message bus
type Envelope struct {
	EventID       string               `json:"event_id"`
	EventType     string               `json:"event_type"`
	AggregateType string               `json:"aggregate_type"`
	AggregateID   string               `json:"aggregate_id"`
	OccurredAt    time.Time            `json:"occurred_at"`
	Metadata      events.EventMetadata `json:"metadata,omitempty"`
	Payload       json.RawMessage      `json:"payload"`
}

// MessageBusEventAdapter публикует доменные события в MessageBus.
// Может использоваться напрямую как EventPublisher или как обработчик InMemoryEventBus.
type MessageBusEventAdapter struct {
	config MessageBusEventConfig
}

// NewMessageBusEventAdapter создает новый MessageBus Event Publisher
func NewMessageBusEventAdapter(config MessageBusEventConfig) (*MessageBusEventAdapter, error) {
	if config.Bus == nil {
		return nil, core.NewError(core.ErrInvalidConfig, "message bus is required")
	}
	if config.SubjectPrefix == "" {
		config.SubjectPrefix = "events"
	}
	return &MessageBusEventAdapter{config: config}, nil
}

// Name возвращает имя компонента (реализация core.Component)
func (m *MessageBusEventAdapter) Name() string {
	return "messagebus-event-adapter"
}

// Type возвращает тип компонента (реализация core.Component)
func (m *MessageBusEventAdapter) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// Handle реализует events.EventHandler
func (m *MessageBusEventAdapter) Handle(ctx context.Context, event events.Event) error {
	return m.Publish(ctx, event)
}

// Publish сериализует событие и публикует его с retry
func (m *MessageBusEventAdapter) Publish(ctx context.Context, event events.Event) error {
	data, err := Serialize(event)
	if err != nil {
		m.record(ctx, event, false)
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	err = transport.PublishWithRetry(ctx, m.config.Bus, m.config.RetryPolicy, m.Subject(event), data, buildHeaders(event))
	m.record(ctx, event, err == nil)
	if err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.EventType(), err)
	}
	return nil
}

func (m *MessageBusEventAdapter) record(ctx context.Context, event events.Event, success bool) {
	if m.config.Metrics != nil {
		m.config.Metrics.RecordEvent(ctx, event.EventType(), success)
	}
}

// Subject формирует subject вида prefix.aggregate_type.event_type
func (m *MessageBusEventAdapter) Subject(event events.Event) string {
	aggregateType := event.AggregateType()
	if aggregateType == "" {
		aggregateType = "unknown"
	}
	return fmt.Sprintf("%s.%s.%s", m.config.SubjectPrefix, aggregateType, event.EventType())
}

// Serialize кодирует событие в Envelope
func Serialize(event events.Event) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		AggregateType: event.AggregateType(),
		AggregateID:   event.AggregateID(),
		OccurredAt:    event.OccurredAt(),
		Metadata:      event.Metadata(),
		Payload:       payload,
	})
}

// buildHeaders формирует headers из метаданных события
func buildHeaders(event events.Event) map[string]string {
	headers := map[string]string{
		"event_type":   event.EventType(),
		"aggregate_id": event.AggregateID(),
		"event_id":     event.EventID(),
	}
	if id := event.Metadata().CorrelationID(); id != "" {
		headers["correlation_id"] = id
	}
	if id := event.Metadata().UserID(); id != "" {
		headers["user_id"] = id
	}
	return headers
}
