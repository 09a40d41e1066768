// Package container собирает инфраструктурные зависимости сервисов из конфигурации.
package container

import (
	"github.com/akriventsev/ordersaga/framework/adapters/messagebus"
	"github.com/akriventsev/ordersaga/framework/metrics"
	"github.com/akriventsev/ordersaga/internal/config"
)

// NewMessageBus создает адаптер шины по секции messagebus конфигурации.
// Для type=none возвращает nil без ошибки.
func NewMessageBus(cfg *config.Config, m *metrics.Metrics) (messagebus.Bus, error) {
	if !cfg.MessageBus.Enabled() {
		return nil, nil
	}
	return messagebus.NewMessageBusFactory().Create(cfg.MessageBus.Type, busConfig(cfg), m)
}

// busConfig конвертирует настройки сервиса в конфигурацию конкретного адаптера
func busConfig(cfg *config.Config) interface{} {
	bus := cfg.MessageBus
	switch bus.Type {
	case "nats":
		c := messagebus.DefaultNATSConfig()
		c.URL = bus.NATSURL
		c.Name = cfg.Service
		c.QueueGroup = cfg.Service
		return c
	case "kafka":
		c := messagebus.DefaultKafkaConfig()
		c.Brokers = bus.KafkaBrokers
		c.GroupID = bus.KafkaGroupID
		return c
	case "redis":
		c := messagebus.DefaultRedisConfig()
		c.Addr = bus.RedisAddr
		c.ConsumerGroup = cfg.Service
		return c
	case "inmemory":
		return messagebus.DefaultInMemoryConfig()
	default:
		return nil
	}
}
