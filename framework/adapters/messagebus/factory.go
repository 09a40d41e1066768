// Package messagebus предоставляет адаптеры для различных message brokers.
package messagebus

import (
	"fmt"
	"sort"
	"sync"

	"github.com/akriventsev/ordersaga/framework/core"
	"github.com/akriventsev/ordersaga/framework/metrics"
	"github.com/akriventsev/ordersaga/framework/transport"
)

// Bus адаптер message bus с управляемым жизненным циклом
type Bus interface {
	transport.MessageBus
	core.Lifecycle
	core.Component
}

// Creator создает адаптер по конфигурации
type Creator func(config interface{}, m *metrics.Metrics) (Bus, error)

// DefaultMessageBusFactory реестр создателей адаптеров
type DefaultMessageBusFactory struct {
	creators map[string]Creator
	mu       sync.RWMutex
}

// NewMessageBusFactory создает фабрику со встроенными адаптерами
func NewMessageBusFactory() *DefaultMessageBusFactory {
	factory := &DefaultMessageBusFactory{creators: make(map[string]Creator)}

	_ = factory.Register("inmemory", func(config interface{}, m *metrics.Metrics) (Bus, error) {
		cfg, ok := config.(InMemoryConfig)
		if !ok {
			cfg = DefaultInMemoryConfig()
		}
		return NewInMemoryAdapter(cfg), nil
	})

	_ = factory.Register("nats", func(config interface{}, m *metrics.Metrics) (Bus, error) {
		cfg, ok := config.(NATSConfig)
		if !ok {
			return nil, fmt.Errorf("invalid NATS config type: %T", config)
		}
		adapter, err := NewNATSAdapter(cfg)
		if err != nil {
			return nil, err
		}
		return adapter.WithMetrics(m), nil
	})

	_ = factory.Register("kafka", func(config interface{}, m *metrics.Metrics) (Bus, error) {
		cfg, ok := config.(KafkaConfig)
		if !ok {
			return nil, fmt.Errorf("invalid Kafka config type: %T", config)
		}
		adapter, err := NewKafkaAdapter(cfg)
		if err != nil {
			return nil, err
		}
		return adapter.WithMetrics(m), nil
	})

	_ = factory.Register("redis", func(config interface{}, m *metrics.Metrics) (Bus, error) {
		cfg, ok := config.(RedisConfig)
		if !ok {
			return nil, fmt.Errorf("invalid Redis config type: %T", config)
		}
		adapter, err := NewRedisAdapter(cfg)
		if err != nil {
			return nil, err
		}
		return adapter.WithMetrics(m), nil
	})

	return factory
}

// Create создает MessageBus адаптер указанного типа
func (f *DefaultMessageBusFactory) Create(busType string, config interface{}, m *metrics.Metrics) (Bus, error) {
	f.mu.RLock()
	creator, exists := f.creators[busType]
	f.mu.RUnlock()

	if !exists {
		return nil, core.Errorf(core.ErrInvalidConfig, "unknown message bus type: %s", busType)
	}

	adapter, err := creator(config, m)
	if err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, fmt.Sprintf("failed to create %s adapter", busType))
	}
	return adapter, nil
}

// Register регистрирует custom адаптер
func (f *DefaultMessageBusFactory) Register(name string, creator Creator) error {
	if name == "" {
		return fmt.Errorf("adapter name cannot be empty")
	}
	if creator == nil {
		return fmt.Errorf("creator function cannot be nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.creators[name]; exists {
		return fmt.Errorf("adapter %s already registered", name)
	}
	f.creators[name] = creator
	return nil
}

// ListRegistered возвращает отсортированный список зарегистрированных адаптеров
func (f *DefaultMessageBusFactory) ListRegistered() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.creators))
	for name := range f.creators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
