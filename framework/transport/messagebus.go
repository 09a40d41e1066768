// Package transport предоставляет абстракции для работы с message bus.
package transport

import (
	"context"
	"time"
)

// Message представляет сообщение в очереди
type Message struct {
	Subject string
	Data    []byte
	Headers map[string]string
}

// MessageHandler обработчик сообщений
type MessageHandler func(ctx context.Context, msg *Message) error

// Subscriber подписчик на сообщения
type Subscriber interface {
	// Subscribe подписывается на subject и вызывает handler при получении сообщения
	Subscribe(ctx context.Context, subject string, handler MessageHandler) error
	// Unsubscribe отписывается от subject
	Unsubscribe(subject string) error
}

// Publisher публикатор сообщений
type Publisher interface {
	// Publish публикует сообщение в subject
	Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error
}

// MessageBus объединяет возможности публикации и подписки
type MessageBus interface {
	Publisher
	Subscriber
}

// RetryPolicy политика повторов публикации
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy три попытки с удвоением задержки
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}
}

// Delay возвращает задержку перед попыткой attempt (нумерация с 1)
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delay := p.InitialDelay
	for i := 2; i < attempt; i++ {
		delay = time.Duration(float64(delay) * p.Multiplier)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}

// PublishWithRetry публикует сообщение, повторяя попытки по политике
func PublishWithRetry(ctx context.Context, pub Publisher, policy RetryPolicy, subject string, data []byte, headers map[string]string) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if d := policy.Delay(attempt); d > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
			}
		}
		if lastErr = pub.Publish(ctx, subject, data, headers); lastErr == nil {
			return nil
		}
	}
	return lastErr
}
