// Package messagebus предоставляет адаптеры для различных message brokers.
package messagebus

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/akriventsev/ordersaga/framework/core"
	"github.com/akriventsev/ordersaga/framework/transport"
)

// InMemoryConfig конфигурация для InMemory адаптера
type InMemoryConfig struct {
	// Async доставка в отдельных goroutine
	Async bool
}

// DefaultInMemoryConfig возвращает конфигурацию InMemory по умолчанию
func DefaultInMemoryConfig() InMemoryConfig {
	return InMemoryConfig{Async: false}
}

// InMemoryAdapter реализация MessageBus в памяти.
// Subject поддерживает wildcard токены "*" (один токен) и ">" (хвост).
type InMemoryAdapter struct {
	config      InMemoryConfig
	subscribers map[string][]transport.MessageHandler
	mu          sync.RWMutex
	running     bool
	wg          sync.WaitGroup
}

// NewInMemoryAdapter создает новый InMemory адаптер
func NewInMemoryAdapter(config InMemoryConfig) *InMemoryAdapter {
	return &InMemoryAdapter{
		config:      config,
		subscribers: make(map[string][]transport.MessageHandler),
	}
}

// Start запускает адаптер (реализация core.Lifecycle)
func (i *InMemoryAdapter) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.running = true
	return nil
}

// Stop останавливает адаптер и ждет асинхронных доставок
func (i *InMemoryAdapter) Stop(ctx context.Context) error {
	i.mu.Lock()
	i.running = false
	i.mu.Unlock()
	i.wg.Wait()
	return nil
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (i *InMemoryAdapter) IsRunning() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.running
}

// Name возвращает имя компонента (реализация core.Component)
func (i *InMemoryAdapter) Name() string {
	return "inmemory-adapter"
}

// Type возвращает тип компонента (реализация core.Component)
func (i *InMemoryAdapter) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// Publish публикует сообщение в subject
func (i *InMemoryAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	i.mu.RLock()
	var handlers []transport.MessageHandler
	for pattern, h := range i.subscribers {
		if matchSubject(pattern, subject) {
			handlers = append(handlers, h...)
		}
	}
	i.mu.RUnlock()

	msg := &transport.Message{Subject: subject, Data: data, Headers: headers}
	for _, handler := range handlers {
		if i.config.Async {
			i.wg.Add(1)
			go func(h transport.MessageHandler) {
				defer i.wg.Done()
				if err := h(context.WithoutCancel(ctx), msg); err != nil {
					log.Printf("[inmemory-bus] handler for %s failed: %v", subject, err)
				}
			}(handler)
			continue
		}
		if err := handler(ctx, msg); err != nil {
			log.Printf("[inmemory-bus] handler for %s failed: %v", subject, err)
		}
	}
	return nil
}

// Subscribe подписывается на subject
func (i *InMemoryAdapter) Subscribe(ctx context.Context, subject string, handler transport.MessageHandler) error {
	if subject == "" {
		return fmt.Errorf("subject cannot be empty")
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.subscribers[subject] = append(i.subscribers[subject], handler)
	return nil
}

// Unsubscribe отписывается от subject
func (i *InMemoryAdapter) Unsubscribe(subject string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.subscribers[subject]; !ok {
		return fmt.Errorf("no subscription for %s", subject)
	}
	delete(i.subscribers, subject)
	return nil
}

// matchSubject сопоставляет subject с шаблоном подписки
func matchSubject(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for idx, token := range pt {
		if token == ">" {
			return idx < len(st)
		}
		if idx >= len(st) {
			return false
		}
		if token != "*" && token != st[idx] {
			return false
		}
	}
	return len(pt) == len(st)
}
