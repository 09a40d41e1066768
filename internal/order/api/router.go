package api

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/akriventsev/ordersaga/framework/adapters/transport"
	"github.com/akriventsev/ordersaga/framework/observability"
)

// Setup подключает к router проверку запросов по OpenAPI, документацию,
// health и маршруты заказов
func Setup(router *gin.Engine, handler *OrderHandler, health *observability.HealthChecker) error {
	validator, err := transport.NewOpenAPIValidator(OpenAPISpec, nil)
	if err != nil {
		return fmt.Errorf("order api: %w", err)
	}

	router.Use(observability.CorrelationIDMiddleware(), validator.Middleware())
	router.GET("/health", health.Handler())
	transport.NewSwaggerUI(transport.SwaggerUIConfig{Path: "/docs", Title: "Order Service"}, OpenAPISpec).RegisterRoutes(router)
	handler.RegisterRoutes(router)
	return nil
}
