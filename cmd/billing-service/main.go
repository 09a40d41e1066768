package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/akriventsev/ordersaga/internal/billing/api"
	"github.com/akriventsev/ordersaga/internal/billing/application"
	"github.com/akriventsev/ordersaga/internal/billing/infrastructure"
	"github.com/akriventsev/ordersaga/internal/billing/migrations"
	"github.com/akriventsev/ordersaga/internal/config"
	"github.com/akriventsev/ordersaga/internal/container"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load("billing-service", *configFile)
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

	service := application.NewBillingService(infrastructure.NewAccountStore(rt.Pool), rt.Events)
	if err := api.Setup(rt.REST.Router(), api.NewBillingHandler(service), rt.Health); err != nil {
		log.Fatalf("Failed to set up routes: %v", err)
	}

	if err := rt.Start(ctx); err != nil {
		log.Fatalf("Failed to start billing-service: %v", err)
	}
	if err := rt.Wait(ctx); err != nil {
		log.Printf("billing-service stopped with error: %v", err)
	}
}
