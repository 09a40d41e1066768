// Package messagebus предоставляет адаптеры для различных message brokers.
package messagebus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/akriventsev/ordersaga/framework/core"
	"github.com/akriventsev/ordersaga/framework/metrics"
	"github.com/akriventsev/ordersaga/framework/transport"
)

// RedisConfig конфигурация для Redis адаптера
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	StreamPrefix  string
	StreamMaxLen  int64 // 0 = без ограничений
	ConsumerGroup string
	BlockTimeout  time.Duration
}

// Validate проверяет корректность конфигурации
func (c RedisConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr cannot be empty")
	}
	if c.ConsumerGroup == "" {
		return fmt.Errorf("ConsumerGroup cannot be empty")
	}
	return nil
}

// DefaultRedisConfig возвращает конфигурацию Redis по умолчанию
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		StreamPrefix:  "stream:",
		StreamMaxLen:  10000,
		ConsumerGroup: "ordersaga",
		BlockTimeout:  5 * time.Second,
	}
}

// RedisAdapter реализация MessageBus через Redis Streams
type RedisAdapter struct {
	config  RedisConfig
	client  *redis.Client
	cancels map[string]context.CancelFunc
	mu      sync.RWMutex
	wg      sync.WaitGroup
	running bool
	metrics *metrics.Metrics
}

// NewRedisAdapter создает новый Redis адаптер
func NewRedisAdapter(config RedisConfig) (*RedisAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	return NewRedisAdapterFromClient(client, config), nil
}

// NewRedisAdapterFromClient создает адаптер поверх готового клиента
func NewRedisAdapterFromClient(client *redis.Client, config RedisConfig) *RedisAdapter {
	return &RedisAdapter{
		config:  config,
		client:  client,
		cancels: make(map[string]context.CancelFunc),
	}
}

// WithMetrics подключает метрики публикации
func (r *RedisAdapter) WithMetrics(m *metrics.Metrics) *RedisAdapter {
	r.metrics = m
	return r
}

// Start проверяет подключение (реализация core.Lifecycle)
func (r *RedisAdapter) Start(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	r.mu.Lock()
	r.running = true
	r.mu.Unlock()
	return nil
}

// Stop останавливает consumers и закрывает клиент
func (r *RedisAdapter) Stop(ctx context.Context) error {
	r.mu.Lock()
	for stream, cancel := range r.cancels {
		cancel()
		delete(r.cancels, stream)
	}
	r.running = false
	r.mu.Unlock()

	r.wg.Wait()
	return r.client.Close()
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (r *RedisAdapter) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Name возвращает имя компонента (реализация core.Component)
func (r *RedisAdapter) Name() string {
	return "redis-adapter"
}

// Type возвращает тип компонента (реализация core.Component)
func (r *RedisAdapter) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// HealthCheck проверяет доступность Redis (реализация core.HealthCheckable)
func (r *RedisAdapter) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisAdapter) streamName(subject string) string {
	return r.config.StreamPrefix + subject
}

// Publish добавляет сообщение в stream через XADD
func (r *RedisAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	start := time.Now()

	values := map[string]interface{}{"data": string(data)}
	if len(headers) > 0 {
		encoded, err := json.Marshal(headers)
		if err != nil {
			return fmt.Errorf("failed to encode headers: %w", err)
		}
		values["headers"] = string(encoded)
	}

	args := &redis.XAddArgs{Stream: r.streamName(subject), Values: values}
	if r.config.StreamMaxLen > 0 {
		args.MaxLen = r.config.StreamMaxLen
		args.Approx = true
	}

	err := r.client.XAdd(ctx, args).Err()
	if r.metrics != nil {
		r.metrics.RecordTransport(ctx, "redis", time.Since(start), err == nil)
	}
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Subscribe читает stream через consumer group и подтверждает сообщения через XACK
func (r *RedisAdapter) Subscribe(ctx context.Context, subject string, handler transport.MessageHandler) error {
	stream := r.streamName(subject)
	consumer := "consumer-" + uuid.NewString()

	err := r.client.XGroupCreateMkStream(ctx, stream, r.config.ConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	readCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	if _, exists := r.cancels[stream]; exists {
		r.mu.Unlock()
		cancel()
		return fmt.Errorf("already subscribed to %s", subject)
	}
	r.cancels[stream] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for readCtx.Err() == nil {
			streams, err := r.client.XReadGroup(readCtx, &redis.XReadGroupArgs{
				Group:    r.config.ConsumerGroup,
				Consumer: consumer,
				Streams:  []string{stream, ">"},
				Count:    10,
				Block:    r.config.BlockTimeout,
			}).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) || readCtx.Err() != nil {
					continue
				}
				log.Printf("[redis-bus] read from %s failed: %v", stream, err)
				time.Sleep(time.Second)
				continue
			}

			for _, s := range streams {
				for _, xmsg := range s.Messages {
					r.dispatch(readCtx, subject, s.Stream, xmsg, handler)
				}
			}
		}
	}()

	return nil
}

func (r *RedisAdapter) dispatch(ctx context.Context, subject, stream string, xmsg redis.XMessage, handler transport.MessageHandler) {
	m := &transport.Message{Subject: subject, Headers: make(map[string]string)}
	if data, ok := xmsg.Values["data"].(string); ok {
		m.Data = []byte(data)
	}
	if raw, ok := xmsg.Values["headers"].(string); ok {
		_ = json.Unmarshal([]byte(raw), &m.Headers)
	}

	if err := handler(ctx, m); err != nil {
		log.Printf("[redis-bus] handler for %s failed: %v", subject, err)
		return
	}
	if err := r.client.XAck(ctx, stream, r.config.ConsumerGroup, xmsg.ID).Err(); err != nil {
		log.Printf("[redis-bus] ack %s failed: %v", xmsg.ID, err)
	}
}

// Unsubscribe останавливает consumer для subject
func (r *RedisAdapter) Unsubscribe(subject string) error {
	stream := r.streamName(subject)
	r.mu.Lock()
	defer r.mu.Unlock()

	cancel, ok := r.cancels[stream]
	if !ok {
		return fmt.Errorf("no subscription for %s", subject)
	}
	cancel()
	delete(r.cancels, stream)
	return nil
}
