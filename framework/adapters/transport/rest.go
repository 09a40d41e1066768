// Package transport предоставляет HTTP транспорт сервисов на gin.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/akriventsev/ordersaga/framework/core"
	"github.com/akriventsev/ordersaga/framework/metrics"
)

// RESTConfig конфигурация для REST адаптера
type RESTConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultRESTConfig возвращает конфигурацию REST по умолчанию
func DefaultRESTConfig() RESTConfig {
	return RESTConfig{
		Port:            8080,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Addr возвращает адрес прослушивания
func (c RESTConfig) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

// RESTAdapter HTTP сервер сервиса
type RESTAdapter struct {
	config  RESTConfig
	name    string
	router  *gin.Engine
	metrics *metrics.Metrics
	running atomic.Bool
	server  *http.Server
	errCh   chan error
}

// NewRESTAdapter создает новый REST адаптер. Метрики опциональны.
func NewRESTAdapter(name string, config RESTConfig, m *metrics.Metrics) *RESTAdapter {
	router := gin.New()
	router.Use(gin.Recovery())
	if m != nil {
		router.Use(MetricsMiddleware(m))
	}

	return &RESTAdapter{
		config:  config,
		name:    name,
		router:  router,
		metrics: m,
		errCh:   make(chan error, 1),
	}
}

// Router возвращает gin engine для регистрации маршрутов
func (r *RESTAdapter) Router() *gin.Engine {
	return r.router
}

// Start запускает адаптер (реализация core.Lifecycle)
func (r *RESTAdapter) Start(ctx context.Context) error {
	if r.running.Load() {
		return nil
	}

	listener, err := net.Listen("tcp", r.config.Addr())
	if err != nil {
		return core.Wrap(err, core.ErrInitializationFailed, "failed to listen on "+r.config.Addr())
	}

	r.server = &http.Server{
		Handler:      r.router,
		ReadTimeout:  r.config.ReadTimeout,
		WriteTimeout: r.config.WriteTimeout,
	}
	r.running.Store(true)

	go func() {
		log.Printf("[%s] HTTP server listening on %s", r.name, listener.Addr())
		if err := r.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[%s] HTTP server error: %v", r.name, err)
			r.errCh <- err
		}
	}()

	return nil
}

// Errors возвращает канал фатальных ошибок сервера
func (r *RESTAdapter) Errors() <-chan error {
	return r.errCh
}

// Stop останавливает адаптер (реализация core.Lifecycle)
func (r *RESTAdapter) Stop(ctx context.Context) error {
	if !r.running.Swap(false) || r.server == nil {
		return nil
	}

	timeout := r.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.server.Shutdown(shutdownCtx)
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (r *RESTAdapter) IsRunning() bool {
	return r.running.Load()
}

// Name возвращает имя компонента (реализация core.Component)
func (r *RESTAdapter) Name() string {
	return r.name + "-rest-adapter"
}

// Type возвращает тип компонента (реализация core.Component)
func (r *RESTAdapter) Type() core.ComponentType {
	return core.ComponentTypeTransport
}

// MetricsMiddleware записывает длительность и статус HTTP запросов
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RecordHTTP(c.Request.Context(), c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
