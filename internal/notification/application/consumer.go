package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/akriventsev/ordersaga/framework/core"
	"github.com/akriventsev/ordersaga/framework/transport"
)

// SendSubject subject шины с запросами на отправку
const SendSubject = "notifications.send"

// SendRequest тело запроса на отправку в HTTP и в шине
type SendRequest struct {
	RecipientID int64  `json:"recipient_id"`
	Message     string `json:"message"`
}

// BusConsumer принимает уведомления из message bus
type BusConsumer struct {
	service    *NotificationService
	subscriber transport.Subscriber
}

// NewBusConsumer создает consumer
func NewBusConsumer(service *NotificationService, subscriber transport.Subscriber) *BusConsumer {
	return &BusConsumer{service: service, subscriber: subscriber}
}

// Start подписывается на SendSubject
func (c *BusConsumer) Start(ctx context.Context) error {
	if err := c.subscriber.Subscribe(ctx, SendSubject, c.Handle); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", SendSubject, err)
	}
	log.Printf("[notification-consumer] listening on %s", SendSubject)
	return nil
}

// Stop отписывается от SendSubject
func (c *BusConsumer) Stop(ctx context.Context) error {
	return c.subscriber.Unsubscribe(SendSubject)
}

// Handle сохраняет одно сообщение. Невалидные сообщения отбрасываются:
// повтор их не исправит.
func (c *BusConsumer) Handle(ctx context.Context, msg *transport.Message) error {
	var req SendRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		log.Printf("[notification-consumer] dropping malformed message: %v", err)
		return nil
	}
	if _, err := c.service.Send(ctx, req.RecipientID, req.Message); err != nil {
		if core.CodeOf(err) == core.ErrValidationFailed {
			log.Printf("[notification-consumer] dropping invalid message for %d: %v", req.RecipientID, err)
			return nil
		}
		return err
	}
	return nil
}
