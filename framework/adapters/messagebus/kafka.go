// Package messagebus предоставляет адаптеры для различных message brokers.
package messagebus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/akriventsev/ordersaga/framework/core"
	"github.com/akriventsev/ordersaga/framework/metrics"
	"github.com/akriventsev/ordersaga/framework/transport"
)

// KafkaConfig конфигурация для Kafka адаптера
type KafkaConfig struct {
	Brokers       []string
	GroupID       string
	Compression   string // none, gzip, snappy, lz4, zstd
	BatchSize     int
	FlushInterval time.Duration
	RequiredAcks  int // 0, 1, -1 (all)
	MaxWait       time.Duration
}

// Validate проверяет корректность конфигурации
func (c KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("brokers cannot be empty")
	}
	for i, broker := range c.Brokers {
		if !strings.Contains(broker, ":") {
			return fmt.Errorf("broker[%d] must be in format host:port", i)
		}
	}
	if c.GroupID == "" {
		return fmt.Errorf("GroupID cannot be empty")
	}
	return nil
}

// DefaultKafkaConfig возвращает конфигурацию Kafka по умолчанию
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers:       []string{"localhost:9092"},
		GroupID:       "ordersaga",
		Compression:   "snappy",
		BatchSize:     100,
		FlushInterval: 10 * time.Millisecond,
		RequiredAcks:  -1,
		MaxWait:       time.Second,
	}
}

// KafkaAdapter реализация MessageBus через Kafka; subject используется как topic
type KafkaAdapter struct {
	config  KafkaConfig
	writer  *kafka.Writer
	readers map[string]*kafka.Reader
	cancels map[string]context.CancelFunc
	mu      sync.RWMutex
	wg      sync.WaitGroup
	running bool
	metrics *metrics.Metrics
}

// NewKafkaAdapter создает новый Kafka адаптер
func NewKafkaAdapter(config KafkaConfig) (*KafkaAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kafka config: %w", err)
	}

	return &KafkaAdapter{
		config:  config,
		readers: make(map[string]*kafka.Reader),
		cancels: make(map[string]context.CancelFunc),
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(config.Brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequiredAcks(config.RequiredAcks),
			BatchSize:              config.BatchSize,
			BatchTimeout:           config.FlushInterval,
			Compression:            getCompression(config.Compression),
			AllowAutoTopicCreation: true,
		},
	}, nil
}

// WithMetrics подключает метрики публикации
func (k *KafkaAdapter) WithMetrics(m *metrics.Metrics) *KafkaAdapter {
	k.metrics = m
	return k
}

// getCompression преобразует строку в kafka.Compression
func getCompression(compression string) kafka.Compression {
	switch compression {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return 0
	}
}

// Start запускает адаптер (реализация core.Lifecycle)
func (k *KafkaAdapter) Start(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.running = true
	return nil
}

// Stop останавливает читателей и закрывает writer
func (k *KafkaAdapter) Stop(ctx context.Context) error {
	k.mu.Lock()
	for topic, cancel := range k.cancels {
		cancel()
		delete(k.cancels, topic)
	}
	k.running = false
	k.mu.Unlock()

	k.wg.Wait()
	return k.writer.Close()
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (k *KafkaAdapter) IsRunning() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.running
}

// Name возвращает имя компонента (реализация core.Component)
func (k *KafkaAdapter) Name() string {
	return "kafka-adapter"
}

// Type возвращает тип компонента (реализация core.Component)
func (k *KafkaAdapter) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// Publish публикует сообщение в topic; ключ сообщения берется из header "aggregate_id"
func (k *KafkaAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	start := time.Now()

	msg := kafka.Message{Topic: subject, Value: data}
	if key := headers["aggregate_id"]; key != "" {
		msg.Key = []byte(key)
	}
	for hk, hv := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: hk, Value: []byte(hv)})
	}

	err := k.writer.WriteMessages(ctx, msg)
	if k.metrics != nil {
		k.metrics.RecordTransport(ctx, "kafka", time.Since(start), err == nil)
	}
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Subscribe запускает consumer group reader для topic.
// Offset коммитится только после успешной обработки.
func (k *KafkaAdapter) Subscribe(ctx context.Context, subject string, handler transport.MessageHandler) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: k.config.Brokers,
		Topic:   subject,
		GroupID: k.config.GroupID,
		MaxWait: k.config.MaxWait,
	})

	readCtx, cancel := context.WithCancel(ctx)
	k.mu.Lock()
	if _, exists := k.readers[subject]; exists {
		k.mu.Unlock()
		cancel()
		_ = reader.Close()
		return fmt.Errorf("already subscribed to %s", subject)
	}
	k.readers[subject] = reader
	k.cancels[subject] = cancel
	k.mu.Unlock()

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		defer func() { _ = reader.Close() }()
		for {
			msg, err := reader.FetchMessage(readCtx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || readCtx.Err() != nil {
					return
				}
				log.Printf("[kafka] fetch from %s failed: %v", subject, err)
				continue
			}

			m := &transport.Message{Subject: msg.Topic, Data: msg.Value, Headers: make(map[string]string, len(msg.Headers))}
			for _, h := range msg.Headers {
				m.Headers[h.Key] = string(h.Value)
			}

			if err := handler(readCtx, m); err != nil {
				log.Printf("[kafka] handler for %s failed: %v", subject, err)
				continue
			}
			if err := reader.CommitMessages(readCtx, msg); err != nil {
				log.Printf("[kafka] commit on %s failed: %v", subject, err)
			}
		}
	}()

	return nil
}

// Unsubscribe останавливает reader для topic
func (k *KafkaAdapter) Unsubscribe(subject string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	cancel, ok := k.cancels[subject]
	if !ok {
		return fmt.Errorf("no subscription for %s", subject)
	}
	cancel()
	delete(k.cancels, subject)
	delete(k.readers, subject)
	return nil
}
