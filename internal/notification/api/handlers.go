// Package api HTTP интерфейс notification-service.
package api

import (
	_ "embed"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/akriventsev/ordersaga/framework/adapters/transport"
	"github.com/akriventsev/ordersaga/framework/observability"
	"github.com/akriventsev/ordersaga/internal/notification/application"
	"github.com/akriventsev/ordersaga/internal/notification/domain"
)

// OpenAPISpec описание HTTP API сервиса
//
//go:embed openapi.yaml
var OpenAPISpec []byte

type sendResponse struct {
	NotificationID int64     `json:"notification_id"`
	RecipientID    int64     `json:"recipient_id"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
	Status         string    `json:"status"`
}

type notificationResponse struct {
	ID          int64     `json:"id"`
	RecipientID int64     `json:"recipient_id"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
	IsRead      bool      `json:"is_read"`
}

type inboxResponse struct {
	UserID        int64                  `json:"user_id"`
	TotalCount    int64                  `json:"total_count"`
	UnreadCount   int64                  `json:"unread_count"`
	Notifications []notificationResponse `json:"notifications"`
}

// NotificationHandler обработчики уведомлений
type NotificationHandler struct {
	service *application.NotificationService
}

// NewNotificationHandler создает обработчик
func NewNotificationHandler(service *application.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// Setup подключает проверку запросов, документацию, health и маршруты уведомлений
func Setup(router *gin.Engine, handler *NotificationHandler, health *observability.HealthChecker) error {
	validator, err := transport.NewOpenAPIValidator(OpenAPISpec, nil)
	if err != nil {
		return fmt.Errorf("notification api: %w", err)
	}

	router.Use(observability.CorrelationIDMiddleware(), validator.Middleware())
	router.GET("/health", health.Handler())
	transport.NewSwaggerUI(transport.SwaggerUIConfig{Path: "/docs", Title: "Notification Service"}, OpenAPISpec).RegisterRoutes(router)

	v1 := router.Group("/api/v1/notification")
	v1.POST("/send", handler.Send)
	v1.GET("/:user_id", handler.List)
	return nil
}

// Send POST /api/v1/notification/send
func (h *NotificationHandler) Send(c *gin.Context) {
	var req application.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		transport.WriteDetail(c, http.StatusUnprocessableEntity, "Invalid request body: "+err.Error())
		return
	}

	n, err := h.service.Send(c.Request.Context(), req.RecipientID, req.Message)
	if err != nil {
		transport.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sendResponse{
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		Message:        n.Message,
		CreatedAt:      n.CreatedAt,
		Status:         domain.StatusSent,
	})
}

// List GET /api/v1/notification/:user_id
func (h *NotificationHandler) List(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		transport.WriteDetail(c, http.StatusUnprocessableEntity, "Invalid user_id")
		return
	}
	if userID <= 0 {
		transport.WriteDetail(c, http.StatusBadRequest, "user_id must be greater than 0")
		return
	}

	inbox, err := h.service.Inbox(c.Request.Context(), userID)
	if err != nil {
		transport.WriteError(c, err)
		return
	}

	response := inboxResponse{
		UserID:        inbox.UserID,
		TotalCount:    inbox.TotalCount,
		UnreadCount:   inbox.UnreadCount,
		Notifications: make([]notificationResponse, 0, len(inbox.Notifications)),
	}
	for _, n := range inbox.Notifications {
		response.Notifications = append(response.Notifications, notificationResponse{
			ID:          n.ID,
			RecipientID: n.RecipientID,
			Message:     n.Message,
			CreatedAt:   n.CreatedAt,
			IsRead:      n.IsRead,
		})
	}
	c.JSON(http.StatusOK, response)
}
