// Package saga предоставляет реализацию Saga Pattern через FSM для оркестрации долгоживущих транзакций.
package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akriventsev/ordersaga/framework/events"
	"github.com/akriventsev/ordersaga/framework/fsm"
	"github.com/akriventsev/ordersaga/framework/metrics"
)

// SagaStatus статус выполнения саги
type SagaStatus string

const (
	SagaStatusPending      SagaStatus = "pending"
	SagaStatusRunning      SagaStatus = "running"
	SagaStatusCompleted    SagaStatus = "completed"
	SagaStatusCompensating SagaStatus = "compensating"
	SagaStatusCompensated  SagaStatus = "compensated"
	SagaStatusFailed       SagaStatus = "failed"
	// SagaStatusResolved сага доведена до конца процессом восстановления
	SagaStatusResolved SagaStatus = "resolved"
)

// IsFinal проверяет, завершена ли сага окончательно
func (s SagaStatus) IsFinal() bool {
	return s == SagaStatusCompleted || s == SagaStatusCompensated || s == SagaStatusResolved
}

// Saga основной интерфейс саги
type Saga interface {
	// ID возвращает уникальный идентификатор саги
	ID() string
	// CurrentStep возвращает текущий шаг выполнения
	CurrentStep() string
	// Status возвращает текущий статус саги
	Status() SagaStatus
	// Execute запускает выполнение саги
	Execute(ctx context.Context) error
	// Resolve переводит незавершенную сагу в resolved
	Resolve(ctx context.Context, note string) error
	// GetHistory возвращает историю выполнения шагов
	GetHistory() []SagaHistory
	// Definition возвращает определение саги
	Definition() SagaDefinition
	// Context возвращает контекст саги
	Context() SagaContext
	// StartedAt возвращает время запуска
	StartedAt() time.Time
	// CompletedAt возвращает время завершения, если сага завершена
	CompletedAt() *time.Time
}

// SagaHistory запись истории выполнения шага
type SagaHistory struct {
	Seq          int        `json:"seq"`
	StepName     string     `json:"step_name"`
	Status       StepStatus `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Error        string     `json:"error,omitempty"`
	RetryAttempt int        `json:"retry_attempt"`
}

// StepStatus статус выполнения шага
type StepStatus string

const (
	StepStatusRunning      StepStatus = "running"
	StepStatusCompleted    StepStatus = "completed"
	StepStatusFailed       StepStatus = "failed"
	StepStatusCompensating StepStatus = "compensating"
	StepStatusCompensated  StepStatus = "compensated"
)

// события FSM статуса саги
const (
	eventStart       = "start"
	eventComplete    = "complete"
	eventStepFailed  = "step_failed"
	eventCompensated = "compensated"
	eventFail        = "fail"
	eventResolve     = "resolve"
)

// newStatusFSM строит автомат статусов саги
func newStatusFSM() *fsm.FSM {
	m := fsm.NewFSM(string(SagaStatusPending), fsm.Config{MaxHistory: 16})
	m.AddState(string(SagaStatusRunning)).
		AddState(string(SagaStatusCompensating)).
		AddState(string(SagaStatusFailed)).
		AddTerminalState(string(SagaStatusCompleted)).
		AddTerminalState(string(SagaStatusCompensated)).
		AddTerminalState(string(SagaStatusResolved))

	transitions := []*fsm.Transition{
		fsm.NewTransition(string(SagaStatusPending), string(SagaStatusRunning), eventStart),
		fsm.NewTransition(string(SagaStatusRunning), string(SagaStatusCompleted), eventComplete),
		fsm.NewTransition(string(SagaStatusRunning), string(SagaStatusCompensating), eventStepFailed),
		fsm.NewTransition(string(SagaStatusCompensating), string(SagaStatusCompensated), eventCompensated),
		fsm.NewTransition(string(SagaStatusCompensating), string(SagaStatusFailed), eventFail),
		fsm.NewTransition(string(SagaStatusRunning), string(SagaStatusFailed), eventFail),
		fsm.NewTransition(string(SagaStatusFailed), string(SagaStatusResolved), eventResolve),
		fsm.NewTransition(string(SagaStatusRunning), string(SagaStatusResolved), eventResolve),
		fsm.NewTransition(string(SagaStatusCompensating), string(SagaStatusResolved), eventResolve),
	}
	for _, t := range transitions {
		// состояния зарегистрированы выше, ошибка невозможна
		_ = m.AddTransition(t)
	}
	return m
}

// Options зависимости экземпляра саги
type Options struct {
	Persistence SagaPersistence
	Publisher   events.EventPublisher
	Metrics     *metrics.Metrics
}

// BaseSaga базовая реализация саги
type BaseSaga struct {
	mu          sync.RWMutex
	id          string
	definition  SagaDefinition
	status      *fsm.FSM
	context     SagaContext
	history     []SagaHistory
	opts        Options
	currentStep string
	startedAt   time.Time
	completedAt *time.Time
}

// NewBaseSaga создает новую базовую сагу
func NewBaseSaga(id string, definition SagaDefinition, sagaCtx SagaContext, opts Options) (*BaseSaga, error) {
	if definition == nil {
		return nil, fmt.Errorf("saga definition is required")
	}
	if len(definition.Steps()) == 0 {
		return nil, fmt.Errorf("saga definition %s has no steps", definition.Name())
	}
	if sagaCtx == nil {
		sagaCtx = NewSagaContext()
	}
	if id == "" {
		id = uuid.New().String()
	}
	if sagaCtx.CorrelationID() == "" {
		sagaCtx.SetCorrelationID(id)
	}

	return &BaseSaga{
		id:         id,
		definition: definition,
		status:     newStatusFSM(),
		context:    sagaCtx,
		opts:       opts,
		startedAt:  time.Now().UTC(),
	}, nil
}

// RestoreBaseSaga восстанавливает сагу из хранилища
func RestoreBaseSaga(id string, definition SagaDefinition, sagaCtx SagaContext, status SagaStatus, currentStep string, history []SagaHistory, startedAt time.Time, completedAt *time.Time, opts Options) (*BaseSaga, error) {
	s, err := NewBaseSaga(id, definition, sagaCtx, opts)
	if err != nil {
		return nil, err
	}
	if err := s.status.Restore(string(status)); err != nil {
		return nil, fmt.Errorf("restore saga %s: %w", id, err)
	}
	s.currentStep = currentStep
	s.history = append([]SagaHistory(nil), history...)
	s.startedAt = startedAt
	s.completedAt = completedAt
	return s, nil
}

func (s *BaseSaga) ID() string { return s.id }

func (s *BaseSaga) CurrentStep() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentStep
}

func (s *BaseSaga) Status() SagaStatus {
	return SagaStatus(s.status.Current())
}

func (s *BaseSaga) Definition() SagaDefinition { return s.definition }

func (s *BaseSaga) Context() SagaContext { return s.context }

func (s *BaseSaga) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

func (s *BaseSaga) CompletedAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.completedAt
}

func (s *BaseSaga) GetHistory() []SagaHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]SagaHistory, len(s.history))
	copy(result, s.history)
	return result
}

// Execute выполняет шаги строго по порядку. При ошибке шага выполненные шаги
// компенсируются в обратном порядке, а ошибка шага возвращается вызывающему.
func (s *BaseSaga) Execute(ctx context.Context) error {
	if err := s.status.Trigger(ctx, eventStart); err != nil {
		return fmt.Errorf("saga %s cannot be started from %s: %w", s.id, s.Status(), err)
	}
	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()
	s.context.Touch()
	s.save(ctx)

	completed := make([]SagaStep, 0, len(s.definition.Steps()))
	for _, step := range s.definition.Steps() {
		if err := s.runStep(ctx, step); err != nil {
			return s.fail(ctx, step, completed, err)
		}
		completed = append(completed, step)
		s.save(ctx)
	}

	if err := s.status.Trigger(ctx, eventComplete); err != nil {
		return fmt.Errorf("saga %s: %w", s.id, err)
	}
	s.finish(ctx)
	return nil
}

// runStep выполняет шаг с учетом guard, timeout и retry policy
func (s *BaseSaga) runStep(ctx context.Context, step SagaStep) error {
	s.mu.Lock()
	s.currentStep = step.Name()
	s.mu.Unlock()

	startedAt := time.Now().UTC()
	seq := s.addHistory(SagaHistory{StepName: step.Name(), Status: StepStatusRunning, StartedAt: startedAt})
	s.publish(ctx, newStepEvent(EventStepStarted, s, step.Name(), ""))

	var stepErr error
	if !step.CanExecute(ctx, s.context) {
		stepErr = fmt.Errorf("step %s guard check failed", step.Name())
	} else {
		stepErr = s.executeWithRetry(ctx, step, seq)
	}

	completedAt := time.Now().UTC()
	s.updateHistory(seq, func(h *SagaHistory) {
		h.CompletedAt = &completedAt
		if stepErr != nil {
			h.Status = StepStatusFailed
			h.Error = stepErr.Error()
		} else {
			h.Status = StepStatusCompleted
		}
	})
	s.context.Touch()

	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordStep(ctx, s.definition.Name(), step.Name(), completedAt.Sub(startedAt), stepErr == nil)
	}
	if stepErr != nil {
		s.publish(ctx, newStepEvent(EventStepFailed, s, step.Name(), stepErr.Error()))
		return stepErr
	}
	s.publish(ctx, newStepEvent(EventStepCompleted, s, step.Name(), ""))
	return nil
}

func (s *BaseSaga) executeWithRetry(ctx context.Context, step SagaStep, seq int) error {
	policy := step.RetryPolicy()
	if policy == nil {
		policy = NoRetry()
	}

	var err error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		s.updateHistory(seq, func(h *SagaHistory) { h.RetryAttempt = attempt })

		stepCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout := step.Timeout(); timeout > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		err = step.Execute(stepCtx, s.context)
		cancel()

		if err == nil || !policy.ShouldRetry(err, attempt+1) {
			return err
		}

		select {
		case <-time.After(policy.CalculateDelay(attempt)):
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		}
	}
	return err
}

// fail компенсирует выполненные шаги и возвращает ошибку шага
func (s *BaseSaga) fail(ctx context.Context, failed SagaStep, completed []SagaStep, stepErr error) error {
	_ = s.status.Trigger(ctx, eventStepFailed)
	s.save(ctx)

	if compErr := s.compensate(ctx, completed); compErr != nil {
		_ = s.status.Trigger(ctx, eventFail)
		s.finish(ctx)
		return fmt.Errorf("step %s failed: %w; compensation also failed: %w", failed.Name(), stepErr, compErr)
	}

	_ = s.status.Trigger(ctx, eventCompensated)
	s.finish(ctx)
	return fmt.Errorf("step %s failed: %w", failed.Name(), stepErr)
}

// compensate вызывает компенсации в обратном порядке.
// Остановка на первой ошибке: более ранние шаги остаются нетронутыми.
func (s *BaseSaga) compensate(ctx context.Context, completed []SagaStep) error {
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if !step.HasCompensation() {
			continue
		}

		s.mu.Lock()
		s.currentStep = step.Name()
		s.mu.Unlock()

		seq := s.addHistory(SagaHistory{StepName: step.Name(), Status: StepStatusCompensating, StartedAt: time.Now().UTC()})
		s.publish(ctx, newStepEvent(EventStepCompensating, s, step.Name(), ""))

		err := step.Compensate(ctx, s.context)
		doneAt := time.Now().UTC()
		s.updateHistory(seq, func(h *SagaHistory) {
			h.CompletedAt = &doneAt
			if err != nil {
				h.Status = StepStatusFailed
				h.Error = err.Error()
			} else {
				h.Status = StepStatusCompensated
			}
		})
		s.context.Touch()

		if err != nil {
			return fmt.Errorf("compensation of step %s: %w", step.Name(), err)
		}
		s.publish(ctx, newStepEvent(EventStepCompensated, s, step.Name(), ""))
	}
	return nil
}

// Resolve фиксирует ручное или автоматическое завершение зависшей саги
func (s *BaseSaga) Resolve(ctx context.Context, note string) error {
	if err := s.status.Trigger(ctx, eventResolve); err != nil {
		return fmt.Errorf("saga %s cannot be resolved from %s: %w", s.id, s.Status(), err)
	}
	now := time.Now().UTC()
	s.addHistory(SagaHistory{StepName: "resolve", Status: StepStatusCompleted, StartedAt: now, CompletedAt: &now, Error: note})
	s.context.Touch()
	s.finish(ctx)
	return nil
}

func (s *BaseSaga) finish(ctx context.Context) {
	now := time.Now().UTC()
	s.mu.Lock()
	s.completedAt = &now
	s.mu.Unlock()
	s.context.Touch()
	s.save(ctx)
}

// save сохраняет состояние. Ошибка хранилища не прерывает сагу:
// заказ остается источником истины, журнал служит для восстановления.
func (s *BaseSaga) save(ctx context.Context) {
	if s.opts.Persistence == nil {
		return
	}
	if err := s.opts.Persistence.Save(context.WithoutCancel(ctx), s); err != nil {
		log.Printf("[saga] failed to persist saga %s (%s): %v", s.id, s.Status(), err)
	}
}

func (s *BaseSaga) publish(ctx context.Context, event events.Event) {
	if s.opts.Publisher == nil {
		return
	}
	if err := s.opts.Publisher.Publish(ctx, event); err != nil {
		log.Printf("[saga] failed to publish %s for saga %s: %v", event.EventType(), s.id, err)
	}
}

func (s *BaseSaga) addHistory(entry SagaHistory) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.Seq = len(s.history)
	s.history = append(s.history, entry)
	return entry.Seq
}

func (s *BaseSaga) updateHistory(seq int, update func(h *SagaHistory)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq >= 0 && seq < len(s.history) {
		update(&s.history[seq])
	}
}

// SagaDefinition определение саги с шагами
type SagaDefinition interface {
	// Name возвращает имя определения саги
	Name() string
	// Steps возвращает все шаги саги
	Steps() []SagaStep
}

// BaseSagaDefinition базовая реализация SagaDefinition
type BaseSagaDefinition struct {
	name  string
	steps []SagaStep
}

// NewBaseSagaDefinition создает новое определение саги
func NewBaseSagaDefinition(name string, steps ...SagaStep) *BaseSagaDefinition {
	return &BaseSagaDefinition{name: name, steps: steps}
}

func (d *BaseSagaDefinition) Name() string { return d.name }

func (d *BaseSagaDefinition) Steps() []SagaStep { return d.steps }

// SagaContext контекст выполнения саги с данными и метаданными
type SagaContext interface {
	Get(key string) interface{}
	Set(key string, value interface{})
	GetString(key string) string
	GetInt64(key string) int64
	GetBool(key string) bool
	// Metadata возвращает копию метаданных
	Metadata() SagaMetadata
	// Touch обновляет UpdatedAt
	Touch()
	CorrelationID() string
	SetCorrelationID(id string)
	// ToMap преобразует данные контекста в map для сериализации
	ToMap() map[string]interface{}
	// FromMap восстанавливает данные контекста из map
	FromMap(data map[string]interface{})
}

// SagaMetadata метаданные саги
type SagaMetadata struct {
	CorrelationID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SagaContextImpl реализация SagaContext
type SagaContextImpl struct {
	mu       sync.RWMutex
	data     map[string]interface{}
	metadata SagaMetadata
}

// NewSagaContext создает новый контекст саги
func NewSagaContext() *SagaContextImpl {
	now := time.Now().UTC()
	return &SagaContextImpl{
		data:     make(map[string]interface{}),
		metadata: SagaMetadata{CreatedAt: now, UpdatedAt: now},
	}
}

func (c *SagaContextImpl) Get(key string) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data[key]
}

func (c *SagaContextImpl) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.metadata.UpdatedAt = time.Now().UTC()
}

func (c *SagaContextImpl) GetString(key string) string {
	if str, ok := c.Get(key).(string); ok {
		return str
	}
	return ""
}

// GetInt64 учитывает float64 после JSON-десериализации
func (c *SagaContextImpl) GetInt64(key string) int64 {
	switch v := c.Get(key).(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

func (c *SagaContextImpl) GetBool(key string) bool {
	b, _ := c.Get(key).(bool)
	return b
}

func (c *SagaContextImpl) Metadata() SagaMetadata {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metadata
}

func (c *SagaContextImpl) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata.UpdatedAt = time.Now().UTC()
}

// SetTimestamps задает метаданные времени при загрузке из хранилища
func (c *SagaContextImpl) SetTimestamps(createdAt, updatedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata.CreatedAt = createdAt
	c.metadata.UpdatedAt = updatedAt
}

func (c *SagaContextImpl) CorrelationID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metadata.CorrelationID
}

func (c *SagaContextImpl) SetCorrelationID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata.CorrelationID = id
}

func (c *SagaContextImpl) ToMap() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make(map[string]interface{}, len(c.data))
	for k, v := range c.data {
		result[k] = v
	}
	return result
}

func (c *SagaContextImpl) FromMap(data map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]interface{}, len(data))
	for k, v := range data {
		c.data[k] = v
	}
}
