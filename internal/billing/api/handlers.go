// Package api HTTP интерфейс billing-service.
package api

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/akriventsev/ordersaga/framework/adapters/transport"
	"github.com/akriventsev/ordersaga/framework/observability"
	"github.com/akriventsev/ordersaga/internal/billing/application"
	"github.com/akriventsev/ordersaga/internal/billing/domain"
)

// OpenAPISpec описание HTTP API сервиса
//
//go:embed openapi.yaml
var OpenAPISpec []byte

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type balanceResponse struct {
	UserID  int64       `json:"user_id"`
	Balance json.Number `json:"balance"`
}

type operationResponse struct {
	UserID     int64       `json:"user_id"`
	Operation  string      `json:"operation"`
	Amount     json.Number `json:"amount"`
	NewBalance json.Number `json:"new_balance"`
}

// BillingHandler обработчики счетов
type BillingHandler struct {
	service *application.BillingService
}

// NewBillingHandler создает обработчик
func NewBillingHandler(service *application.BillingService) *BillingHandler {
	return &BillingHandler{service: service}
}

// Setup подключает проверку запросов, документацию, health и маршруты billing
func Setup(router *gin.Engine, handler *BillingHandler, health *observability.HealthChecker) error {
	validator, err := transport.NewOpenAPIValidator(OpenAPISpec, nil)
	if err != nil {
		return fmt.Errorf("billing api: %w", err)
	}

	router.Use(observability.CorrelationIDMiddleware(), validator.Middleware())
	router.GET("/health", health.Handler())
	transport.NewSwaggerUI(transport.SwaggerUIConfig{Path: "/docs", Title: "Billing Service"}, OpenAPISpec).RegisterRoutes(router)

	v1 := router.Group("/api/v1")
	v1.GET("/balance/:user_id", handler.GetBalance)
	v1.POST("/deposit/:user_id", handler.Deposit)
	v1.POST("/withdraw/:user_id", handler.Withdraw)
	return nil
}

// GetBalance GET /api/v1/balance/:user_id
func (h *BillingHandler) GetBalance(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}
	account, err := h.service.Balance(c.Request.Context(), userID)
	if err != nil {
		transport.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, balanceResponse{UserID: account.UserID, Balance: json.Number(account.Balance.StringFixed(2))})
}

// Deposit POST /api/v1/deposit/:user_id
func (h *BillingHandler) Deposit(c *gin.Context) {
	h.operate(c, h.service.Deposit)
}

// Withdraw POST /api/v1/withdraw/:user_id
func (h *BillingHandler) Withdraw(c *gin.Context) {
	h.operate(c, h.service.Withdraw)
}

type operation func(ctx context.Context, userID int64, amount decimal.Decimal) (*domain.Operation, error)

func (h *BillingHandler) operate(c *gin.Context, op operation) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		transport.WriteDetail(c, http.StatusUnprocessableEntity, "Invalid request body: "+err.Error())
		return
	}

	result, err := op(c.Request.Context(), userID, req.Amount)
	if err != nil {
		transport.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, operationResponse{
		UserID:     result.UserID,
		Operation:  result.Operation,
		Amount:     json.Number(result.Amount.StringFixed(2)),
		NewBalance: json.Number(result.NewBalance.StringFixed(2)),
	})
}

func pathUserID(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		transport.WriteDetail(c, http.StatusUnprocessableEntity, "Invalid user_id")
		return 0, false
	}
	return userID, true
}
