// Package messagebus предоставляет адаптеры для различных message brokers.
package messagebus

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/akriventsev/ordersaga/framework/core"
	"github.com/akriventsev/ordersaga/framework/metrics"
	"github.com/akriventsev/ordersaga/framework/transport"
)

// NATSConfig конфигурация для NATS адаптера
type NATSConfig struct {
	URL               string
	Name              string
	QueueGroup        string
	MaxReconnects     int
	ReconnectWait     time.Duration
	DrainTimeout      time.Duration
	ConnectionTimeout time.Duration
	Token             string
	Username          string
	Password          string
}

// Validate проверяет корректность конфигурации
func (c NATSConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	if !strings.HasPrefix(c.URL, "nats://") && !strings.HasPrefix(c.URL, "tls://") {
		return fmt.Errorf("URL must start with nats:// or tls://")
	}
	return nil
}

// DefaultNATSConfig возвращает конфигурацию NATS по умолчанию
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:               nats.DefaultURL,
		MaxReconnects:     10,
		ReconnectWait:     2 * time.Second,
		DrainTimeout:      30 * time.Second,
		ConnectionTimeout: 5 * time.Second,
	}
}

// NATSAdapter реализация MessageBus через NATS
type NATSAdapter struct {
	config  NATSConfig
	conn    *nats.Conn
	subs    map[string]*nats.Subscription
	mu      sync.RWMutex
	metrics *metrics.Metrics
}

// NewNATSAdapter создает адаптер; соединение открывается в Start
func NewNATSAdapter(config NATSConfig) (*NATSAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid nats config: %w", err)
	}
	return &NATSAdapter{config: config, subs: make(map[string]*nats.Subscription)}, nil
}

// WithMetrics подключает метрики публикации
func (n *NATSAdapter) WithMetrics(m *metrics.Metrics) *NATSAdapter {
	n.metrics = m
	return n
}

// Start подключается к NATS (реализация core.Lifecycle)
func (n *NATSAdapter) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn != nil {
		return nil
	}

	opts := []nats.Option{
		nats.MaxReconnects(n.config.MaxReconnects),
		nats.ReconnectWait(n.config.ReconnectWait),
		nats.Timeout(n.config.ConnectionTimeout),
		nats.DrainTimeout(n.config.DrainTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
	}
	if n.config.Name != "" {
		opts = append(opts, nats.Name(n.config.Name))
	}
	if n.config.Token != "" {
		opts = append(opts, nats.Token(n.config.Token))
	}
	if n.config.Username != "" && n.config.Password != "" {
		opts = append(opts, nats.UserInfo(n.config.Username, n.config.Password))
	}

	conn, err := nats.Connect(n.config.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	n.conn = conn
	return nil
}

// Stop дренирует подписки и закрывает соединение
func (n *NATSAdapter) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn == nil {
		return nil
	}
	err := n.conn.Drain()
	n.conn = nil
	n.subs = make(map[string]*nats.Subscription)
	return err
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (n *NATSAdapter) IsRunning() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.conn != nil && n.conn.IsConnected()
}

// Name возвращает имя компонента (реализация core.Component)
func (n *NATSAdapter) Name() string {
	return "nats-adapter"
}

// Type возвращает тип компонента (реализация core.Component)
func (n *NATSAdapter) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// HealthCheck проверяет соединение (реализация core.HealthCheckable)
func (n *NATSAdapter) HealthCheck(ctx context.Context) error {
	if !n.IsRunning() {
		return fmt.Errorf("nats is not connected")
	}
	return nil
}

func (n *NATSAdapter) connection() *nats.Conn {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.conn
}

// Publish публикует сообщение в subject
func (n *NATSAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	start := time.Now()
	conn := n.connection()
	if conn == nil {
		return fmt.Errorf("nats adapter is not connected")
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range headers {
		msg.Header.Set(k, v)
	}

	err := conn.PublishMsg(msg)
	if n.metrics != nil {
		n.metrics.RecordTransport(ctx, "nats", time.Since(start), err == nil)
	}
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Subscribe подписывается на subject; при заданной QueueGroup сообщения балансируются
func (n *NATSAdapter) Subscribe(ctx context.Context, subject string, handler transport.MessageHandler) error {
	conn := n.connection()
	if conn == nil {
		return fmt.Errorf("nats adapter is not connected")
	}

	cb := func(msg *nats.Msg) {
		m := &transport.Message{Subject: msg.Subject, Data: msg.Data, Headers: make(map[string]string)}
		for k, vals := range msg.Header {
			if len(vals) > 0 {
				m.Headers[k] = vals[0]
			}
		}
		if err := handler(ctx, m); err != nil {
			log.Printf("[nats] handler for %s failed: %v", msg.Subject, err)
		}
	}

	var (
		sub *nats.Subscription
		err error
	)
	if n.config.QueueGroup != "" {
		sub, err = conn.QueueSubscribe(subject, n.config.QueueGroup, cb)
	} else {
		sub, err = conn.Subscribe(subject, cb)
	}
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	n.mu.Lock()
	n.subs[subject] = sub
	n.mu.Unlock()
	return nil
}

// Unsubscribe отписывается от subject
func (n *NATSAdapter) Unsubscribe(subject string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	sub, ok := n.subs[subject]
	if !ok {
		return fmt.Errorf("no subscription for %s", subject)
	}
	delete(n.subs, subject)
	return sub.Unsubscribe()
}
