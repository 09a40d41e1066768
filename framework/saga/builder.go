package saga

import (
	"fmt"
	"time"
)

// SagaBuilder построитель определения саги
type SagaBuilder struct {
	name        string
	steps       []SagaStep
	timeout     time.Duration
	retryPolicy *RetryPolicy
}

// NewSagaBuilder создает новый построитель саги
func NewSagaBuilder(name string) *SagaBuilder {
	return &SagaBuilder{
		name:  name,
		steps: make([]SagaStep, 0),
	}
}

// AddStep добавляет шаг в сагу
func (b *SagaBuilder) AddStep(step SagaStep) *SagaBuilder {
	b.steps = append(b.steps, step)
	return b
}

// WithTimeout устанавливает таймаут по умолчанию для шагов без своего
func (b *SagaBuilder) WithTimeout(timeout time.Duration) *SagaBuilder {
	b.timeout = timeout
	return b
}

// WithRetryPolicy устанавливает политику повторов по умолчанию
func (b *SagaBuilder) WithRetryPolicy(policy *RetryPolicy) *SagaBuilder {
	b.retryPolicy = policy
	return b
}

// Build строит SagaDefinition
func (b *SagaBuilder) Build() (SagaDefinition, error) {
	if b.name == "" {
		return nil, fmt.Errorf("saga name is required")
	}
	if len(b.steps) == 0 {
		return nil, fmt.Errorf("saga %s must have at least one step", b.name)
	}

	stepNames := make(map[string]bool, len(b.steps))
	for _, step := range b.steps {
		if step == nil || step.Name() == "" {
			return nil, fmt.Errorf("saga %s has a step without name", b.name)
		}
		if stepNames[step.Name()] {
			return nil, fmt.Errorf("duplicate step name: %s", step.Name())
		}
		stepNames[step.Name()] = true

		baseStep, ok := step.(*BaseStep)
		if !ok {
			continue
		}
		if b.timeout > 0 && baseStep.Timeout() == 0 {
			baseStep.WithTimeout(b.timeout)
		}
		if b.retryPolicy != nil && baseStep.RetryPolicy() == nil {
			baseStep.WithRetry(b.retryPolicy)
		}
	}

	steps := make([]SagaStep, len(b.steps))
	copy(steps, b.steps)
	return NewBaseSagaDefinition(b.name, steps...), nil
}
