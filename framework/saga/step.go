package saga

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SagaStep интерфейс шага саги
type SagaStep interface {
	// Name возвращает имя шага
	Name() string
	// Execute выполняет forward action
	Execute(ctx context.Context, sagaCtx SagaContext) error
	// Compensate выполняет compensating action
	Compensate(ctx context.Context, sagaCtx SagaContext) error
	// HasCompensation сообщает, задан ли compensating action
	HasCompensation() bool
	// CanExecute проверяет возможность выполнения шага (guard)
	CanExecute(ctx context.Context, sagaCtx SagaContext) bool
	// Timeout возвращает таймаут выполнения шага
	Timeout() time.Duration
	// RetryPolicy возвращает политику повторов
	RetryPolicy() *RetryPolicy
}

// StepFunc действие шага
type StepFunc func(ctx context.Context, sagaCtx SagaContext) error

// RetryPolicy политика повторов для шага
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Backoff      float64
	// RetryableErrors ограничивает повторы ошибками из списка (errors.Is)
	RetryableErrors []error
}

// ShouldRetry определяет, нужно ли повторить попытку после attempt попыток
func (p *RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.MaxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if len(p.RetryableErrors) == 0 {
		return true
	}
	for _, retryable := range p.RetryableErrors {
		if errors.Is(err, retryable) {
			return true
		}
	}
	return false
}

// CalculateDelay вычисляет задержку перед повтором номер attempt+1
func (p *RetryPolicy) CalculateDelay(attempt int) time.Duration {
	backoff := p.Backoff
	if backoff < 1 {
		backoff = 1
	}
	delay := float64(p.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= backoff
	}
	if p.MaxDelay > 0 && time.Duration(delay) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// NoRetry создает политику без повторов
func NoRetry() *RetryPolicy {
	return &RetryPolicy{MaxAttempts: 1, Backoff: 1.0}
}

// SimpleRetry создает политику с фиксированной задержкой
func SimpleRetry(maxAttempts int, delay time.Duration) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  maxAttempts,
		InitialDelay: delay,
		Backoff:      1.0,
	}
}

// ExponentialBackoff создает политику с экспоненциальной задержкой
func ExponentialBackoff(maxAttempts int, initialDelay, maxDelay time.Duration, backoff float64) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  maxAttempts,
		InitialDelay: initialDelay,
		MaxDelay:     maxDelay,
		Backoff:      backoff,
	}
}

// BaseStep базовая реализация SagaStep
type BaseStep struct {
	name             string
	executeAction    StepFunc
	compensateAction StepFunc
	guard            func(ctx context.Context, sagaCtx SagaContext) bool
	timeout          time.Duration
	retryPolicy      *RetryPolicy
}

// NewBaseStep создает новый базовый шаг
func NewBaseStep(name string) *BaseStep {
	return &BaseStep{name: name}
}

func (s *BaseStep) Name() string {
	return s.name
}

func (s *BaseStep) Execute(ctx context.Context, sagaCtx SagaContext) error {
	if s.executeAction == nil {
		return fmt.Errorf("execute action not set for step %s", s.name)
	}
	return s.executeAction(ctx, sagaCtx)
}

func (s *BaseStep) Compensate(ctx context.Context, sagaCtx SagaContext) error {
	if s.compensateAction == nil {
		return nil
	}
	return s.compensateAction(ctx, sagaCtx)
}

func (s *BaseStep) HasCompensation() bool {
	return s.compensateAction != nil
}

func (s *BaseStep) CanExecute(ctx context.Context, sagaCtx SagaContext) bool {
	if s.guard == nil {
		return true
	}
	return s.guard(ctx, sagaCtx)
}

func (s *BaseStep) Timeout() time.Duration {
	return s.timeout
}

func (s *BaseStep) RetryPolicy() *RetryPolicy {
	return s.retryPolicy
}

// WithExecute устанавливает execute action
func (s *BaseStep) WithExecute(action StepFunc) *BaseStep {
	s.executeAction = action
	return s
}

// WithCompensate устанавливает compensate action
func (s *BaseStep) WithCompensate(action StepFunc) *BaseStep {
	s.compensateAction = action
	return s
}

// WithGuard устанавливает guard функцию
func (s *BaseStep) WithGuard(guard func(ctx context.Context, sagaCtx SagaContext) bool) *BaseStep {
	s.guard = guard
	return s
}

// WithTimeout устанавливает timeout
func (s *BaseStep) WithTimeout(timeout time.Duration) *BaseStep {
	s.timeout = timeout
	return s
}

// WithRetry устанавливает retry policy
func (s *BaseStep) WithRetry(policy *RetryPolicy) *BaseStep {
	s.retryPolicy = policy
	return s
}
