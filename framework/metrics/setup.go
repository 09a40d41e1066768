// Package metrics предоставляет функции для настройки системы метрик.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// MetricsConfig конфигурация метрик
type MetricsConfig struct {
	ServiceName   string
	ResourceAttrs map[string]string
	// Registry реестр Prometheus; по умолчанию prometheus.DefaultRegisterer
	Registry *promclient.Registry
}

// SetupMetrics настраивает экспорт метрик через Prometheus
func SetupMetrics(config MetricsConfig) (*metric.MeterProvider, error) {
	opts := []prometheus.Option{}
	if config.Registry != nil {
		opts = append(opts, prometheus.WithRegisterer(config.Registry))
	}
	exporter, err := prometheus.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	attrs := buildResourceAttributes(config.ResourceAttrs)
	if config.ServiceName != "" {
		attrs = append(attrs, attribute.String("service.name", config.ServiceName))
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := metric.NewMeterProvider(
		metric.WithReader(exporter),
		metric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	return provider, nil
}

// Handler возвращает HTTP handler для /metrics
func Handler(registry *promclient.Registry) http.Handler {
	if registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// buildResourceAttributes строит resource attributes
func buildResourceAttributes(attrs map[string]string) []attribute.KeyValue {
	result := make([]attribute.KeyValue, 0, len(attrs)+1)
	for k, v := range attrs {
		result = append(result, attribute.String(k, v))
	}
	return result
}

// ShutdownMetrics корректно завершает работу метрик
func ShutdownMetrics(ctx context.Context, provider *metric.MeterProvider) error {
	if provider == nil {
		return nil
	}
	return provider.Shutdown(ctx)
}
