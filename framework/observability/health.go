package observability

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/akriventsev/ordersaga/framework/core"
)

// HealthCheck интерфейс для проверки зависимости
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

type checkFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (c checkFunc) Name() string                    { return c.name }
func (c checkFunc) Check(ctx context.Context) error { return c.fn(ctx) }

// NewCheck создает HealthCheck из функции
func NewCheck(name string, fn func(ctx context.Context) error) HealthCheck {
	return checkFunc{name: name, fn: fn}
}

// HTTPHealthCheck проверяет, что GET url отвечает 200
func HTTPHealthCheck(name, url string, client *http.Client) HealthCheck {
	if client == nil {
		client = http.DefaultClient
	}
	return NewCheck(name, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		return nil
	})
}

// HealthReport ответ health endpoint
type HealthReport struct {
	Status       core.HealthStatus `json:"status"`
	Service      string            `json:"service"`
	Timestamp    time.Time         `json:"timestamp"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// HealthChecker опрашивает зависимости сервиса
type HealthChecker struct {
	mu      sync.RWMutex
	service string
	timeout time.Duration
	checks  []HealthCheck
}

// NewHealthChecker создает HealthChecker с общим бюджетом времени на проверки
func NewHealthChecker(service string, timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthChecker{service: service, timeout: timeout}
}

// Register добавляет проверку
func (h *HealthChecker) Register(checks ...HealthCheck) *HealthChecker {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, checks...)
	return h
}

// Run выполняет проверки параллельно. Сбой любой зависимости делает статус degraded.
func (h *HealthChecker) Run(ctx context.Context) HealthReport {
	h.mu.RLock()
	checks := append([]HealthCheck(nil), h.checks...)
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	report := HealthReport{
		Status:    core.HealthStatusHealthy,
		Service:   h.service,
		Timestamp: time.Now().UTC(),
	}
	if len(checks) == 0 {
		return report
	}

	results := make([]error, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check HealthCheck) {
			defer wg.Done()
			results[i] = check.Check(ctx)
		}(i, check)
	}
	wg.Wait()

	report.Dependencies = make(map[string]string, len(checks))
	for i, check := range checks {
		if results[i] != nil {
			report.Dependencies[check.Name()] = "unhealthy: " + results[i].Error()
			report.Status = core.HealthStatusDegraded
			continue
		}
		report.Dependencies[check.Name()] = string(core.HealthStatusHealthy)
	}
	return report
}

// Handler возвращает gin handler. Ответ всегда 200, состояние передается в теле.
func (h *HealthChecker) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, h.Run(c.Request.Context()))
	}
}
