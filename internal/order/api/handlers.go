// Package api HTTP интерфейс order-service.
package api

import (
	_ "embed"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/akriventsev/ordersaga/framework/adapters/transport"
	"github.com/akriventsev/ordersaga/framework/saga"
	"github.com/akriventsev/ordersaga/internal/order/application"
	"github.com/akriventsev/ordersaga/internal/order/domain"
)

// OpenAPISpec описание HTTP API сервиса
//
//go:embed openapi.yaml
var OpenAPISpec []byte

type createOrderRequest struct {
	Price       decimal.Decimal `json:"price"`
	ProductName string          `json:"product_name"`
}

type createOrderResponse struct {
	OrderID     int64       `json:"order_id"`
	SagaID      string      `json:"saga_id"`
	Price       json.Number `json:"price"`
	ProductName string      `json:"product_name"`
	Status      string      `json:"status"`
	UserID      int64       `json:"user_id"`
	Message     string      `json:"message"`
}

type orderFailureResponse struct {
	Detail  string `json:"detail"`
	OrderID int64  `json:"order_id"`
	SagaID  string `json:"saga_id"`
	Status  string `json:"status"`
}

type orderResponse struct {
	ID          int64       `json:"id"`
	Price       json.Number `json:"price"`
	ProductName string      `json:"product_name"`
	Status      string      `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	UserID      int64       `json:"user_id"`
}

type sagaResponse struct {
	SagaID      string                 `json:"saga_id"`
	Name        string                 `json:"name"`
	Status      string                 `json:"status"`
	CurrentStep string                 `json:"current_step"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at"`
	Context     map[string]interface{} `json:"context"`
	History     []saga.SagaHistory     `json:"history"`
}

// OrderHandler обработчики заказов
type OrderHandler struct {
	service *application.OrderService
}

// NewOrderHandler создает обработчик
func NewOrderHandler(service *application.OrderService) *OrderHandler {
	return &OrderHandler{service: service}
}

// RegisterRoutes регистрирует маршруты API
func (h *OrderHandler) RegisterRoutes(router gin.IRouter) {
	v1 := router.Group("/api/v1")
	v1.POST("/order/create", RequireUserID(), h.CreateOrder)
	v1.GET("/orders/:user_id", RequireUserID(), h.ListOrders)
	v1.GET("/sagas/:saga_id", h.GetSaga)
}

// CreateOrder POST /api/v1/order/create
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		transport.WriteDetail(c, http.StatusUnprocessableEntity, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.service.CreateOrder(c.Request.Context(), authenticatedUserID(c), req.Price, req.ProductName)
	if err != nil {
		var failure *application.OrderFailure
		if errors.As(err, &failure) {
			c.AbortWithStatusJSON(transport.StatusOf(err), orderFailureResponse{
				Detail:  transport.DetailOf(err),
				OrderID: failure.OrderID,
				SagaID:  failure.SagaID,
				Status:  string(failure.Status),
			})
			return
		}
		transport.WriteError(c, err)
		return
	}

	c.JSON(http.StatusCreated, createOrderResponse{
		OrderID:     result.OrderID,
		SagaID:      result.SagaID,
		Price:       json.Number(result.Price.StringFixed(2)),
		ProductName: result.ProductName,
		Status:      string(result.Status),
		UserID:      result.UserID,
		Message:     result.Message,
	})
}

// ListOrders GET /api/v1/orders/:user_id?skip=&limit=
func (h *OrderHandler) ListOrders(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		transport.WriteDetail(c, http.StatusBadRequest, "Invalid User ID format. Must be an integer")
		return
	}
	if userID <= 0 {
		transport.WriteDetail(c, http.StatusBadRequest, "User ID must be greater than 0")
		return
	}
	skip, err := queryInt(c, "skip", 0)
	if err != nil {
		transport.WriteDetail(c, http.StatusUnprocessableEntity, "Invalid query parameter skip")
		return
	}
	limit, err := queryInt(c, "limit", application.DefaultListLimit)
	if err != nil {
		transport.WriteDetail(c, http.StatusUnprocessableEntity, "Invalid query parameter limit")
		return
	}

	orders, err := h.service.ListOrders(c.Request.Context(), authenticatedUserID(c), userID, skip, limit)
	if err != nil {
		transport.WriteError(c, err)
		return
	}

	response := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		response = append(response, toOrderResponse(o))
	}
	c.JSON(http.StatusOK, response)
}

// GetSaga GET /api/v1/sagas/:saga_id
func (h *OrderHandler) GetSaga(c *gin.Context) {
	instance, err := h.service.GetSaga(c.Request.Context(), c.Param("saga_id"))
	if err != nil {
		transport.WriteError(c, err)
		return
	}

	history := instance.GetHistory()
	if history == nil {
		history = []saga.SagaHistory{}
	}
	c.JSON(http.StatusOK, sagaResponse{
		SagaID:      instance.ID(),
		Name:        instance.Definition().Name(),
		Status:      string(instance.Status()),
		CurrentStep: instance.CurrentStep(),
		StartedAt:   instance.StartedAt(),
		CompletedAt: instance.CompletedAt(),
		Context:     instance.Context().ToMap(),
		History:     history,
	})
}

func toOrderResponse(o *domain.Order) orderResponse {
	return orderResponse{
		ID:          o.ID,
		Price:       json.Number(o.Price.StringFixed(2)),
		ProductName: o.ProductName,
		Status:      string(o.Status),
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
		UserID:      o.UserID,
	}
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
