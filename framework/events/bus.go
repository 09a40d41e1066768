// Package events предоставляет реализацию EventBus.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// AllEvents подписка на все типы событий
const AllEvents = "*"

// ErrBusStopped шина остановлена
var ErrBusStopped = errors.New("event bus is stopped")

// EventMiddleware middleware для событий
type EventMiddleware func(ctx context.Context, event Event, next func(ctx context.Context, event Event) error) error

// InMemoryEventBus синхронная шина событий в памяти
type InMemoryEventBus struct {
	mu         sync.RWMutex
	handlers   map[string][]EventHandler
	middleware []EventMiddleware
	wg         sync.WaitGroup
	stopped    bool
}

// NewInMemoryEventBus создает новую шину событий
func NewInMemoryEventBus() *InMemoryEventBus {
	return &InMemoryEventBus{handlers: make(map[string][]EventHandler)}
}

// WithMiddleware добавляет middleware к шине
func (b *InMemoryEventBus) WithMiddleware(middleware EventMiddleware) *InMemoryEventBus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, middleware)
	return b
}

// Subscribe подписывается на тип события
func (b *InMemoryEventBus) Subscribe(eventType string, handler EventHandler) error {
	if handler == nil {
		return fmt.Errorf("handler for %s is nil", eventType)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return nil
}

// Publish доставляет событие всем подписчикам по очереди.
// Ошибки обработчиков собираются и возвращаются вместе.
func (b *InMemoryEventBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	if b.stopped {
		b.mu.RUnlock()
		return ErrBusStopped
	}
	b.wg.Add(1)
	handlers := make([]EventHandler, 0, len(b.handlers[event.EventType()])+len(b.handlers[AllEvents]))
	handlers = append(handlers, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.handlers[AllEvents]...)
	middleware := b.middleware
	b.mu.RUnlock()
	defer b.wg.Done()

	next := func(ctx context.Context, event Event) error {
		var errs []error
		for _, h := range handlers {
			if err := h.Handle(ctx, event); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	for i := len(middleware) - 1; i >= 0; i-- {
		mw := middleware[i]
		prev := next
		next = func(ctx context.Context, event Event) error {
			return mw(ctx, event, prev)
		}
	}

	return next(ctx, event)
}

// Shutdown запрещает новые публикации и ждет завершения активных
func (b *InMemoryEventBus) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
