package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/akriventsev/ordersaga/framework/core"
	"github.com/akriventsev/ordersaga/framework/metrics"
	"github.com/akriventsev/ordersaga/framework/observability"
	"github.com/akriventsev/ordersaga/framework/transport"
)

// NotificationSubject subject шины, который слушает notification-service
const NotificationSubject = "notifications.send"

// NotificationMessage тело уведомления в HTTP и в шине
type NotificationMessage struct {
	RecipientID int64  `json:"recipient_id"`
	Message     string `json:"message"`
}

// NotificationClient HTTP клиент notification-service
type NotificationClient struct {
	remote remoteClient
}

// NewNotificationClient создает клиент notification-service
func NewNotificationClient(baseURL string, timeout time.Duration, m *metrics.Metrics) *NotificationClient {
	return &NotificationClient{remote: newRemoteClient("notification", baseURL, timeout, m)}
}

// Send записывает уведомление для пользователя
func (c *NotificationClient) Send(ctx context.Context, recipientID int64, message string) error {
	resp, err := c.remote.do(ctx, "send", http.MethodPost, "/api/v1/notification/send",
		NotificationMessage{RecipientID: recipientID, Message: message})
	if err != nil {
		return core.Wrap(err, core.ErrServiceUnavailable, "notification service unavailable")
	}
	defer drain(resp)

	if !isSuccess(resp.StatusCode) {
		return core.Errorf(core.ErrRemote, "notification service returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// HealthURL адрес /health notification-service
func (c *NotificationClient) HealthURL() string {
	return c.remote.baseURL + "/health"
}

// BusNotifier публикует уведомления в шину вместо HTTP вызова
type BusNotifier struct {
	publisher transport.Publisher
	subject   string
	policy    transport.RetryPolicy
}

// NewBusNotifier создает notifier поверх publisher
func NewBusNotifier(publisher transport.Publisher) *BusNotifier {
	return &BusNotifier{
		publisher: publisher,
		subject:   NotificationSubject,
		policy:    transport.DefaultRetryPolicy(),
	}
}

// Send публикует уведомление с повторами
func (n *BusNotifier) Send(ctx context.Context, recipientID int64, message string) error {
	data, err := json.Marshal(NotificationMessage{RecipientID: recipientID, Message: message})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	headers := map[string]string{"content_type": "application/json"}
	if id := observability.ExtractCorrelationID(ctx); id != "" {
		headers["correlation_id"] = id
	}
	if err := transport.PublishWithRetry(ctx, n.publisher, n.policy, n.subject, data, headers); err != nil {
		return core.Wrap(err, core.ErrServiceUnavailable, "failed to publish notification")
	}
	return nil
}
