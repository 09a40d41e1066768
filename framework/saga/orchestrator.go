package saga

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/akriventsev/ordersaga/framework/events"
	"github.com/akriventsev/ordersaga/framework/metrics"
)

// Orchestrator координирует создание, выполнение и восстановление саг
type Orchestrator struct {
	mu          sync.Mutex
	registry    *SagaRegistry
	persistence SagaPersistence
	publisher   events.EventPublisher
	metrics     *metrics.Metrics
	running     map[string]context.CancelFunc
}

// NewOrchestrator создает новый оркестратор
func NewOrchestrator(registry *SagaRegistry, persistence SagaPersistence) *Orchestrator {
	if registry == nil {
		registry = NewSagaRegistry()
	}
	if persistence == nil {
		persistence = NewInMemoryPersistence()
	}
	return &Orchestrator{
		registry:    registry,
		persistence: persistence,
		publisher:   events.NopPublisher{},
		running:     make(map[string]context.CancelFunc),
	}
}

// WithPublisher устанавливает publisher событий жизненного цикла
func (o *Orchestrator) WithPublisher(publisher events.EventPublisher) *Orchestrator {
	if publisher != nil {
		o.publisher = publisher
	}
	return o
}

// WithMetrics добавляет метрики к оркестратору
func (o *Orchestrator) WithMetrics(m *metrics.Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// Registry возвращает реестр определений
func (o *Orchestrator) Registry() *SagaRegistry {
	return o.registry
}

// NewSaga создает экземпляр саги по имени зарегистрированного определения
func (o *Orchestrator) NewSaga(definitionName string, sagaCtx SagaContext) (*BaseSaga, error) {
	definition, err := o.registry.GetSaga(definitionName)
	if err != nil {
		return nil, err
	}
	return NewBaseSaga("", definition, sagaCtx, Options{
		Persistence: o.persistence,
		Publisher:   o.publisher,
		Metrics:     o.metrics,
	})
}

// Start создает и синхронно выполняет сагу. Экземпляр возвращается и при ошибке,
// чтобы вызывающий мог прочитать контекст.
func (o *Orchestrator) Start(ctx context.Context, definitionName string, sagaCtx SagaContext) (Saga, error) {
	instance, err := o.NewSaga(definitionName, sagaCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to create saga %s: %w", definitionName, err)
	}
	return instance, o.Execute(ctx, instance)
}

// Execute выполняет сагу, публикуя события и записывая метрики
func (o *Orchestrator) Execute(ctx context.Context, instance Saga) error {
	sagaCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.running[instance.ID()] = cancel
	o.mu.Unlock()
	defer func() {
		cancel()
		o.mu.Lock()
		delete(o.running, instance.ID())
		o.mu.Unlock()
	}()

	name := instance.Definition().Name()
	if o.metrics != nil {
		o.metrics.SagaStarted(ctx)
		defer o.metrics.SagaFinished(ctx)
	}
	o.publish(ctx, newLifecycleEvent(EventSagaStarted, instance, ""))

	started := time.Now()
	err := instance.Execute(sagaCtx)
	status := instance.Status()

	if o.metrics != nil {
		o.metrics.RecordSaga(ctx, name, string(status), time.Since(started))
	}

	errText := ""
	if err != nil {
		errText = err.Error()
		log.Printf("[saga] %s %s finished with status %s: %v", name, instance.ID(), status, err)
	}
	switch status {
	case SagaStatusCompleted:
		o.publish(ctx, newLifecycleEvent(EventSagaCompleted, instance, ""))
	case SagaStatusCompensated:
		o.publish(ctx, newLifecycleEvent(EventSagaCompensated, instance, errText))
	default:
		o.publish(ctx, newLifecycleEvent(EventSagaFailed, instance, errText))
	}
	return err
}

// Cancel отменяет выполняющуюся сагу
func (o *Orchestrator) Cancel(sagaID string) error {
	o.mu.Lock()
	cancel, exists := o.running[sagaID]
	o.mu.Unlock()
	if !exists {
		return fmt.Errorf("saga %s is not running", sagaID)
	}
	cancel()
	return nil
}

// Load загружает сагу из хранилища
func (o *Orchestrator) Load(ctx context.Context, sagaID string) (Saga, error) {
	return o.persistence.Load(ctx, sagaID)
}

// GetStatus возвращает статус саги
func (o *Orchestrator) GetStatus(ctx context.Context, sagaID string) (SagaStatus, error) {
	instance, err := o.persistence.Load(ctx, sagaID)
	if err != nil {
		return "", err
	}
	return instance.Status(), nil
}

// ListByStatus загружает саги в любом из перечисленных статусов
func (o *Orchestrator) ListByStatus(ctx context.Context, statuses ...SagaStatus) ([]Saga, error) {
	var result []Saga
	for _, status := range statuses {
		sagas, err := o.persistence.LoadAll(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s sagas: %w", status, err)
		}
		result = append(result, sagas...)
	}
	return result, nil
}

// Resolve помечает незавершенную сагу как разрешенную
func (o *Orchestrator) Resolve(ctx context.Context, instance Saga, note string) error {
	if err := instance.Resolve(ctx, note); err != nil {
		return err
	}
	o.publish(ctx, newLifecycleEvent(EventSagaResolved, instance, note))
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, event events.Event) {
	err := o.publisher.Publish(ctx, event)
	if o.metrics != nil {
		o.metrics.RecordEvent(ctx, event.EventType(), err == nil)
	}
	if err != nil {
		log.Printf("[saga] failed to publish %s: %v", event.EventType(), err)
	}
}
