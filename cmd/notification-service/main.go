package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/akriventsev/ordersaga/internal/config"
	"github.com/akriventsev/ordersaga/internal/container"
	"github.com/akriventsev/ordersaga/internal/notification/api"
	"github.com/akriventsev/ordersaga/internal/notification/application"
	"github.com/akriventsev/ordersaga/internal/notification/infrastructure"
	"github.com/akriventsev/ordersaga/internal/notification/migrations"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load("notification-service", *configFile)
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

	service := application.NewNotificationService(infrastructure.NewNotificationStore(rt.Pool))
	if err := api.Setup(rt.REST.Router(), api.NewNotificationHandler(service), rt.Health); err != nil {
		log.Fatalf("Failed to set up routes: %v", err)
	}

	// уведомления из шины принимаются наравне с HTTP
	var units []container.Unit
	if rt.Bus != nil {
		units = append(units, container.Unit{
			Name:      "notification-consumer",
			Component: application.NewBusConsumer(service, rt.Bus),
		})
	}

	if err := rt.Start(ctx, units...); err != nil {
		log.Fatalf("Failed to start notification-service: %v", err)
	}
	if err := rt.Wait(ctx); err != nil {
		log.Printf("notification-service stopped with error: %v", err)
	}
}
