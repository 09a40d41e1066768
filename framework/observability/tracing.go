// Package observability предоставляет tracing, correlation ID и health checks.
package observability

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// CorrelationIDHeader заголовок сквозного идентификатора запроса
const CorrelationIDHeader = "X-Correlation-ID"

// Поддерживаемые exporters
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
	ExporterJaeger = "jaeger"
	ExporterZipkin = "zipkin"
)

// TracingConfig конфигурация для distributed tracing
type TracingConfig struct {
	ServiceName      string
	ServiceVersion   string
	Exporter         string
	ExporterEndpoint string
	SamplingRate     float64
	Environment      string
}

// Enabled сообщает, нужно ли создавать provider
func (c TracingConfig) Enabled() bool {
	return c.Exporter != "" && c.Exporter != ExporterNone
}

// TracingManager владеет TracerProvider сервиса
type TracingManager struct {
	config   TracingConfig
	provider *sdktrace.TracerProvider
}

// NewTracingManager создает TracingManager. При выключенном tracing
// глобальный provider остается no-op, но propagator устанавливается всегда.
func NewTracingManager(config TracingConfig) (*TracingManager, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !config.Enabled() {
		return &TracingManager{config: config}, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := createExporter(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s exporter: %w", config.Exporter, err)
	}

	sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.SamplingRate))
	if config.SamplingRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	log.Printf("[tracing] %s exporter enabled for %s", config.Exporter, config.ServiceName)

	return &TracingManager{config: config, provider: tp}, nil
}

func createExporter(config TracingConfig) (sdktrace.SpanExporter, error) {
	switch config.Exporter {
	case ExporterJaeger:
		return jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(config.ExporterEndpoint)))
	case ExporterZipkin:
		return zipkin.New(config.ExporterEndpoint)
	case ExporterOTLP:
		client := otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(config.ExporterEndpoint),
			otlptracehttp.WithInsecure(),
		)
		return otlptrace.New(context.Background(), client)
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("unknown exporter %q", config.Exporter)
	}
}

// Stop сбрасывает накопленные spans и останавливает provider
func (tm *TracingManager) Stop(ctx context.Context) error {
	if tm.provider == nil {
		return nil
	}
	return tm.provider.Shutdown(ctx)
}

// Tracer возвращает tracer сервиса
func (tm *TracingManager) Tracer() trace.Tracer {
	return otel.Tracer(tm.config.ServiceName)
}

// HTTPTracingMiddleware gin middleware для инструментации входящих запросов
func HTTPTracingMiddleware(serviceName string) gin.HandlerFunc {
	tracer := otel.Tracer(serviceName)
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
		)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		if len(c.Errors) > 0 {
			span.RecordError(c.Errors.Last())
		}
	}
}

// CorrelationIDMiddleware берет correlation ID из заголовка или генерирует новый
func CorrelationIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationIDHeader)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Request = c.Request.WithContext(InjectCorrelationID(c.Request.Context(), correlationID))
		c.Writer.Header().Set(CorrelationIDHeader, correlationID)
		c.Next()
	}
}

// ExtractCorrelationID извлекает correlation ID из context
func ExtractCorrelationID(ctx context.Context) string {
	if member := baggage.FromContext(ctx).Member(CorrelationIDHeader); member.Value() != "" {
		return member.Value()
	}

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.TraceID().IsValid() {
		return spanCtx.TraceID().String()
	}
	return ""
}

// InjectCorrelationID добавляет correlation ID в baggage контекста
func InjectCorrelationID(ctx context.Context, correlationID string) context.Context {
	member, err := baggage.NewMember(CorrelationIDHeader, correlationID)
	if err != nil {
		return ctx
	}
	b, err := baggage.FromContext(ctx).SetMember(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, b)
}

// PropagateHeaders переносит trace context и correlation ID в исходящий запрос
func PropagateHeaders(ctx context.Context, headers http.Header) {
	if correlationID := ExtractCorrelationID(ctx); correlationID != "" {
		headers.Set(CorrelationIDHeader, correlationID)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}

// TraceOperation оборачивает операцию в span с указанным именем
func TraceOperation(ctx context.Context, tracerName, operation string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, operation)
	defer span.End()

	span.SetAttributes(attrs...)
	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Bool("operation.success", err == nil))
	return err
}
