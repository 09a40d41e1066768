package saga

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrSagaNotFound сага отсутствует в хранилище
var ErrSagaNotFound = errors.New("saga not found")

// SagaPersistence интерфейс для сохранения состояния саг
type SagaPersistence interface {
	// Save сохраняет состояние саги вместе с историей шагов
	Save(ctx context.Context, saga Saga) error
	// Load загружает сагу по ID
	Load(ctx context.Context, sagaID string) (Saga, error)
	// LoadAll загружает все саги с указанным статусом
	LoadAll(ctx context.Context, status SagaStatus) ([]Saga, error)
	// Delete удаляет сагу
	Delete(ctx context.Context, sagaID string) error
	// GetHistory возвращает историю выполнения саги
	GetHistory(ctx context.Context, sagaID string) ([]SagaHistory, error)
}

// SagaRegistry реестр определений саг, нужен для восстановления из хранилища
type SagaRegistry struct {
	mu          sync.RWMutex
	definitions map[string]SagaDefinition
}

// NewSagaRegistry создает новый реестр
func NewSagaRegistry() *SagaRegistry {
	return &SagaRegistry{definitions: make(map[string]SagaDefinition)}
}

// RegisterSaga регистрирует определение саги
func (r *SagaRegistry) RegisterSaga(definition SagaDefinition) error {
	if definition == nil || definition.Name() == "" {
		return fmt.Errorf("saga definition must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.definitions[definition.Name()]; exists {
		return fmt.Errorf("saga definition %s already registered", definition.Name())
	}
	r.definitions[definition.Name()] = definition
	return nil
}

// GetSaga возвращает определение по имени
func (r *SagaRegistry) GetSaga(name string) (SagaDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	definition, ok := r.definitions[name]
	if !ok {
		return nil, fmt.Errorf("saga definition %s not registered", name)
	}
	return definition, nil
}

// Names возвращает имена зарегистрированных определений
func (r *SagaRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.definitions))
	for name := range r.definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InMemoryPersistence реализация persistence в памяти для тестов и локального запуска
type InMemoryPersistence struct {
	mu    sync.RWMutex
	sagas map[string]Saga
}

// NewInMemoryPersistence создает новую in-memory persistence
func NewInMemoryPersistence() *InMemoryPersistence {
	return &InMemoryPersistence{sagas: make(map[string]Saga)}
}

func (p *InMemoryPersistence) Save(_ context.Context, saga Saga) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sagas[saga.ID()] = saga
	return nil
}

func (p *InMemoryPersistence) Load(_ context.Context, sagaID string) (Saga, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	saga, exists := p.sagas[sagaID]
	if !exists {
		return nil, fmt.Errorf("saga %s: %w", sagaID, ErrSagaNotFound)
	}
	return saga, nil
}

func (p *InMemoryPersistence) LoadAll(_ context.Context, status SagaStatus) ([]Saga, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var result []Saga
	for _, saga := range p.sagas {
		if saga.Status() == status {
			result = append(result, saga)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt().Before(result[j].StartedAt())
	})
	return result, nil
}

func (p *InMemoryPersistence) Delete(_ context.Context, sagaID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sagas, sagaID)
	return nil
}

func (p *InMemoryPersistence) GetHistory(ctx context.Context, sagaID string) ([]SagaHistory, error) {
	saga, err := p.Load(ctx, sagaID)
	if err != nil {
		return nil, err
	}
	return saga.GetHistory(), nil
}
