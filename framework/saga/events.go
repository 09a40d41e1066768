package saga

import (
	"github.com/akriventsev/ordersaga/framework/events"
)

// AggregateType тип агрегата для событий саги
const AggregateType = "saga"

// Типы событий жизненного цикла саги
const (
	EventSagaStarted      = "saga.started"
	EventSagaCompleted    = "saga.completed"
	EventSagaCompensated  = "saga.compensated"
	EventSagaFailed       = "saga.failed"
	EventSagaResolved     = "saga.resolved"
	EventStepStarted      = "saga.step.started"
	EventStepCompleted    = "saga.step.completed"
	EventStepFailed       = "saga.step.failed"
	EventStepCompensating = "saga.step.compensating"
	EventStepCompensated  = "saga.step.compensated"
)

// SagaLifecycleEvent событие смены статуса саги
type SagaLifecycleEvent struct {
	*events.BaseEvent
	SagaID         string     `json:"saga_id"`
	DefinitionName string     `json:"definition_name"`
	Status         SagaStatus `json:"status"`
	CurrentStep    string     `json:"current_step,omitempty"`
	Error          string     `json:"error,omitempty"`
	DurationMs     int64      `json:"duration_ms,omitempty"`
}

// StepEvent событие выполнения или компенсации шага
type StepEvent struct {
	*events.BaseEvent
	SagaID         string `json:"saga_id"`
	DefinitionName string `json:"definition_name"`
	StepName       string `json:"step_name"`
	Error          string `json:"error,omitempty"`
}

func newLifecycleEvent(eventType string, s Saga, errText string) *SagaLifecycleEvent {
	base := events.NewBaseEvent(eventType, AggregateType, s.ID()).
		WithCorrelationID(s.Context().CorrelationID())

	event := &SagaLifecycleEvent{
		BaseEvent:      base,
		SagaID:         s.ID(),
		DefinitionName: s.Definition().Name(),
		Status:         s.Status(),
		CurrentStep:    s.CurrentStep(),
		Error:          errText,
	}
	if done := s.CompletedAt(); done != nil {
		event.DurationMs = done.Sub(s.StartedAt()).Milliseconds()
	}
	return event
}

func newStepEvent(eventType string, s Saga, stepName, errText string) *StepEvent {
	return &StepEvent{
		BaseEvent: events.NewBaseEvent(eventType, AggregateType, s.ID()).
			WithCorrelationID(s.Context().CorrelationID()),
		SagaID:         s.ID(),
		DefinitionName: s.Definition().Name(),
		StepName:       stepName,
		Error:          errText,
	}
}
