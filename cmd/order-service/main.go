package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/akriventsev/ordersaga/framework/observability"
	"github.com/akriventsev/ordersaga/framework/saga"
	"github.com/akriventsev/ordersaga/internal/config"
	"github.com/akriventsev/ordersaga/internal/container"
	"github.com/akriventsev/ordersaga/internal/order/api"
	"github.com/akriventsev/ordersaga/internal/order/application"
	"github.com/akriventsev/ordersaga/internal/order/infrastructure"
	"github.com/akriventsev/ordersaga/internal/order/migrations"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load("order-service", *configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := container.NewRuntime(ctx, cfg, migrations.FS)
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}
	defer rt.Close(ctx)

	orders := infrastructure.NewOrderStore(rt.Pool)
	balance := infrastructure.NewBalanceClient(cfg.Billing.URL, cfg.Billing.Timeout, rt.Metrics)
	notificationClient := infrastructure.NewNotificationClient(cfg.Notification.URL, cfg.Notification.Timeout, rt.Metrics)

	var notifier application.Notifier = notificationClient
	if cfg.Notifier == config.NotifierBus {
		notifier = infrastructure.NewBusNotifier(rt.Bus)
	}

	deps := application.SagaDeps{
		Orders:    orders,
		Balance:   balance,
		Notifier:  notifier,
		Publisher: rt.Events,
	}
	definition, err := application.NewOrderSagaDefinition(deps)
	if err != nil {
		log.Fatalf("Failed to build saga definition: %v", err)
	}
	registry := saga.NewSagaRegistry()
	if err := registry.RegisterSaga(definition); err != nil {
		log.Fatalf("Failed to register saga: %v", err)
	}
	orchestrator := saga.NewOrchestrator(registry, saga.NewPostgresPersistence(rt.Pool, registry)).
		WithPublisher(rt.Events).
		WithMetrics(rt.Metrics)

	service := application.NewOrderService(orchestrator, orders)
	if cfg.Lock.Enabled {
		client := redis.NewClient(&redis.Options{Addr: cfg.Lock.RedisAddr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		service = service.WithLocker(infrastructure.NewUserLock(client, cfg.Lock.TTL, cfg.Lock.WaitTimeout))
	}

	healthClient := &http.Client{Timeout: cfg.Billing.Timeout}
	rt.Health.Register(
		observability.HTTPHealthCheck("billing_service", balance.HealthURL(), healthClient),
		observability.HTTPHealthCheck("notification_service", notificationClient.HealthURL(), healthClient),
	)

	if err := api.Setup(rt.REST.Router(), api.NewOrderHandler(service), rt.Health); err != nil {
		log.Fatalf("Failed to set up routes: %v", err)
	}

	var units []container.Unit
	if cfg.Recovery.Enabled {
		recoverer := application.NewRecoverer(orchestrator, deps, cfg.Recovery.StaleAfter)
		units = append(units, container.Unit{
			Name: "saga-recovery",
			Component: container.Background(func(ctx context.Context) {
				recoverer.Run(ctx, cfg.Recovery.Interval)
			}),
		})
	}

	if err := rt.Start(ctx, units...); err != nil {
		log.Fatalf("Failed to start order-service: %v", err)
	}
	if err := rt.Wait(ctx); err != nil {
		log.Printf("order-service stopped with error: %v", err)
	}
}
