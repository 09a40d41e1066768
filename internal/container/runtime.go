package container

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	promclient "github.com/prometheus/client_golang/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	eventsadapter "github.com/akriventsev/ordersaga/framework/adapters/events"
	"github.com/akriventsev/ordersaga/framework/adapters/messagebus"
	"github.com/akriventsev/ordersaga/framework/adapters/transport"
	"github.com/akriventsev/ordersaga/framework/core"
	"github.com/akriventsev/ordersaga/framework/events"
	"github.com/akriventsev/ordersaga/framework/metrics"
	"github.com/akriventsev/ordersaga/framework/migrations"
	"github.com/akriventsev/ordersaga/framework/observability"
	"github.com/akriventsev/ordersaga/internal/config"
)

// Runtime общая инфраструктура HTTP сервиса: tracing, метрики, база,
// шина, шина событий, REST сервер и health.
type Runtime struct {
	Config  *config.Config
	Metrics *metrics.Metrics
	Pool    *pgxpool.Pool
	Bus     messagebus.Bus
	Events  *events.InMemoryEventBus
	REST    *transport.RESTAdapter
	Health  *observability.HealthChecker

	tracing       *observability.TracingManager
	meterProvider *sdkmetric.MeterProvider
	group         Group
}

// NewRuntime поднимает инфраструктуру сервиса. schema применяется при
// database.auto_migrate; nil отключает миграции.
func NewRuntime(ctx context.Context, cfg *config.Config, schema fs.FS) (*Runtime, error) {
	rt := &Runtime{Config: cfg}

	tracing, err := observability.NewTracingManager(observability.TracingConfig{
		ServiceName:      cfg.Service,
		ServiceVersion:   cfg.Version,
		Exporter:         cfg.Tracing.Exporter,
		ExporterEndpoint: cfg.Tracing.Endpoint,
		SamplingRate:     cfg.Tracing.SamplingRate,
		Environment:      cfg.Tracing.Environment,
	})
	if err != nil {
		return nil, core.Wrap(err, core.ErrInitializationFailed, "failed to set up tracing")
	}
	rt.tracing = tracing

	registry := promclient.NewRegistry()
	if rt.meterProvider, err = metrics.SetupMetrics(metrics.MetricsConfig{ServiceName: cfg.Service, Registry: registry}); err != nil {
		rt.Close(ctx)
		return nil, core.Wrap(err, core.ErrInitializationFailed, "failed to set up metrics")
	}
	if rt.Metrics, err = metrics.NewMetrics(); err != nil {
		rt.Close(ctx)
		return nil, core.Wrap(err, core.ErrInitializationFailed, "failed to create metrics")
	}

	if rt.Pool, err = OpenDatabase(ctx, cfg.Database); err != nil {
		rt.Close(ctx)
		return nil, err
	}
	if cfg.Database.AutoMigrate && schema != nil {
		if err := Migrate(ctx, rt.Pool, schema); err != nil {
			rt.Close(ctx)
			return nil, err
		}
	}

	if rt.Bus, err = NewMessageBus(cfg, rt.Metrics); err != nil {
		rt.Close(ctx)
		return nil, core.Wrap(err, core.ErrInitializationFailed, "failed to create message bus")
	}
	if rt.Events, err = NewEventBus(rt.Bus, cfg.MessageBus.SubjectPrefix, rt.Metrics); err != nil {
		rt.Close(ctx)
		return nil, err
	}

	rt.REST = transport.NewRESTAdapter(cfg.Service, transport.RESTConfig{
		Host:            cfg.HTTP.Host,
		Port:            cfg.HTTP.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	}, rt.Metrics)
	router := rt.REST.Router()
	router.Use(observability.HTTPTracingMiddleware(cfg.Service))
	router.GET("/metrics", gin.WrapH(metrics.Handler(registry)))

	pool := rt.Pool
	rt.Health = observability.NewHealthChecker(cfg.Service, 5*time.Second).
		Register(observability.NewCheck("database", func(ctx context.Context) error { return pool.Ping(ctx) }))
	if checkable, ok := rt.Bus.(core.HealthCheckable); ok {
		rt.Health.Register(observability.NewCheck("message_bus", checkable.HealthCheck))
	}

	return rt, nil
}

// OpenDatabase открывает пул соединений и проверяет доступность базы
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "invalid database url")
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, core.Wrap(err, core.ErrInitializationFailed, "failed to create database pool")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, core.Wrap(err, core.ErrInitializationFailed, "failed to connect to database")
	}
	return pool, nil
}

// Migrate применяет миграции schema через goose
func Migrate(ctx context.Context, pool *pgxpool.Pool, schema fs.FS) error {
	db := SQLDB(pool)
	defer db.Close()

	migrator := migrations.NewMigrator(db, schema, ".")
	if err := migrator.Up(ctx); err != nil {
		return core.Wrap(err, core.ErrInitializationFailed, "failed to apply migrations")
	}
	version, err := migrator.Version(ctx)
	if err == nil {
		log.Printf("[container] database schema at version %d", version)
	}
	return nil
}

// SQLDB открывает database/sql поверх пула для goose
func SQLDB(pool *pgxpool.Pool) *sql.DB {
	return stdlib.OpenDBFromPool(pool)
}

// NewEventBus создает шину доменных событий. Если задана внешняя шина,
// все события дублируются в нее с subject prefix.aggregate.event.
func NewEventBus(bus messagebus.Bus, prefix string, m *metrics.Metrics) (*events.InMemoryEventBus, error) {
	eventBus := events.NewInMemoryEventBus()
	if bus == nil {
		return eventBus, nil
	}

	adapterConfig := eventsadapter.DefaultMessageBusEventConfig(bus)
	if prefix != "" {
		adapterConfig.SubjectPrefix = prefix
	}
	adapterConfig.Metrics = m
	adapter, err := eventsadapter.NewMessageBusEventAdapter(adapterConfig)
	if err != nil {
		return nil, err
	}
	if err := eventBus.Subscribe(events.AllEvents, adapter); err != nil {
		return nil, fmt.Errorf("failed to bridge events to message bus: %w", err)
	}
	return eventBus, nil
}

// Start запускает шину, дополнительные компоненты и HTTP сервер
func (rt *Runtime) Start(ctx context.Context, units ...Unit) error {
	if rt.Bus != nil {
		if err := rt.group.Start(ctx, Unit{Name: rt.Bus.Name(), Component: rt.Bus}); err != nil {
			return err
		}
	}
	if err := rt.group.Start(ctx, units...); err != nil {
		return err
	}
	return rt.group.Start(ctx, Unit{Name: rt.REST.Name(), Component: rt.REST})
}

// Wait блокируется до отмены ctx или фатальной ошибки HTTP сервера
func (rt *Runtime) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		log.Printf("[%s] shutting down", rt.Config.Service)
		return nil
	case err := <-rt.REST.Errors():
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Close останавливает компоненты и освобождает ресурсы
func (rt *Runtime) Close(ctx context.Context) {
	timeout := rt.Config.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	_ = rt.group.Stop(ctx)
	if rt.Events != nil {
		if err := rt.Events.Shutdown(ctx); err != nil {
			log.Printf("[%s] event bus shutdown: %v", rt.Config.Service, err)
		}
	}
	if rt.Pool != nil {
		rt.Pool.Close()
	}
	if err := metrics.ShutdownMetrics(ctx, rt.meterProvider); err != nil {
		log.Printf("[%s] metrics shutdown: %v", rt.Config.Service, err)
	}
	if rt.tracing != nil {
		if err := rt.tracing.Stop(ctx); err != nil {
			log.Printf("[%s] tracing shutdown: %v", rt.Config.Service, err)
		}
	}
}
