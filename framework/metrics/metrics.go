// Package metrics предоставляет систему метрик на основе OpenTelemetry.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics сборщик метрик приложения
type Metrics struct {
	meter             metric.Meter
	sagasTotal        metric.Int64Counter
	sagaDuration      metric.Float64Histogram
	stepsTotal        metric.Int64Counter
	stepDuration      metric.Float64Histogram
	eventsTotal       metric.Int64Counter
	transportTotal    metric.Int64Counter
	transportDuration metric.Float64Histogram
	remoteCalls       metric.Int64Counter
	remoteDuration    metric.Float64Histogram
	httpRequests      metric.Int64Counter
	httpDuration      metric.Float64Histogram
	activeSagas       metric.Int64UpDownCounter
}

// NewMetrics создает новый сборщик метрик
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("ordersaga")
	m := &Metrics{meter: meter}
	var err error

	if m.sagasTotal, err = meter.Int64Counter("sagas_total",
		metric.WithDescription("Total number of finished sagas by final status")); err != nil {
		return nil, err
	}
	if m.sagaDuration, err = meter.Float64Histogram("saga_duration_seconds",
		metric.WithDescription("Saga execution duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.stepsTotal, err = meter.Int64Counter("saga_steps_total",
		metric.WithDescription("Total number of executed saga steps")); err != nil {
		return nil, err
	}
	if m.stepDuration, err = meter.Float64Histogram("saga_step_duration_seconds",
		metric.WithDescription("Saga step duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.eventsTotal, err = meter.Int64Counter("events_total",
		metric.WithDescription("Total number of events published")); err != nil {
		return nil, err
	}
	if m.transportTotal, err = meter.Int64Counter("messagebus_messages_total",
		metric.WithDescription("Total number of messages published to the message bus")); err != nil {
		return nil, err
	}
	if m.transportDuration, err = meter.Float64Histogram("messagebus_publish_duration_seconds",
		metric.WithDescription("Message bus publish duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.remoteCalls, err = meter.Int64Counter("remote_calls_total",
		metric.WithDescription("Total number of calls to downstream services by outcome")); err != nil {
		return nil, err
	}
	if m.remoteDuration, err = meter.Float64Histogram("remote_call_duration_seconds",
		metric.WithDescription("Downstream call duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.httpRequests, err = meter.Int64Counter("http_requests_total",
		metric.WithDescription("Total number of HTTP requests")); err != nil {
		return nil, err
	}
	if m.httpDuration, err = meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.activeSagas, err = meter.Int64UpDownCounter("active_sagas",
		metric.WithDescription("Number of sagas being executed")); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordSaga записывает завершение саги
func (m *Metrics) RecordSaga(ctx context.Context, sagaName, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("saga", sagaName),
		attribute.String("status", status),
	)
	m.sagasTotal.Add(ctx, 1, attrs)
	m.sagaDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordStep записывает выполнение шага саги
func (m *Metrics) RecordStep(ctx context.Context, sagaName, stepName string, duration time.Duration, success bool) {
	attrs := metric.WithAttributes(
		attribute.String("saga", sagaName),
		attribute.String("step", stepName),
		attribute.Bool("success", success),
	)
	m.stepsTotal.Add(ctx, 1, attrs)
	m.stepDuration.Record(ctx, duration.Seconds(), attrs)
}

// SagaStarted увеличивает счетчик активных саг
func (m *Metrics) SagaStarted(ctx context.Context) {
	m.activeSagas.Add(ctx, 1)
}

// SagaFinished уменьшает счетчик активных саг
func (m *Metrics) SagaFinished(ctx context.Context) {
	m.activeSagas.Add(ctx, -1)
}

// RecordEvent записывает метрику события
func (m *Metrics) RecordEvent(ctx context.Context, eventType string, success bool) {
	m.eventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", eventType),
		attribute.Bool("success", success),
	))
}

// RecordTransport записывает метрику транспорта
func (m *Metrics) RecordTransport(ctx context.Context, transportName string, duration time.Duration, success bool) {
	attrs := metric.WithAttributes(
		attribute.String("transport", transportName),
		attribute.Bool("success", success),
	)
	m.transportTotal.Add(ctx, 1, attrs)
	m.transportDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordRemoteCall записывает вызов удаленного сервиса
func (m *Metrics) RecordRemoteCall(ctx context.Context, service, operation, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	)
	m.remoteCalls.Add(ctx, 1, attrs)
	m.remoteDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordHTTP записывает метрику входящего HTTP запроса
func (m *Metrics) RecordHTTP(ctx context.Context, method, route string, status int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpDuration.Record(ctx, duration.Seconds(), attrs)
}
