package application

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/akriventsev/ordersaga/framework/core"
	"github.com/akriventsev/ordersaga/framework/events"
	"github.com/akriventsev/ordersaga/framework/saga"
	"github.com/akriventsev/ordersaga/internal/order/domain"
)

type mockOrders struct {
	mu        sync.Mutex
	orders    map[int64]*domain.Order
	nextID    int64
	insertErr error
	// failOnce ошибка для следующего UpdateStatus в указанный статус
	failOnce map[domain.Status]error
}

func newMockOrders() *mockOrders {
	return &mockOrders{orders: make(map[int64]*domain.Order), failOnce: make(map[domain.Status]error)}
}

func (m *mockOrders) Insert(ctx context.Context, order *domain.Order) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	m.nextID++
	order.ID = m.nextID
	stored := *order
	m.orders[order.ID] = &stored
	return order.ID, nil
}

func (m *mockOrders) UpdateStatus(ctx context.Context, orderID int64, status domain.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failOnce[status]; ok {
		delete(m.failOnce, status)
		return err
	}
	order, ok := m.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if order.Status == status {
		return nil
	}
	event, err := domain.EventFor(status)
	if err != nil {
		return err
	}
	next, err := domain.Transition(order.Status, event)
	if err != nil {
		return err
	}
	order.Status = next
	return nil
}

func (m *mockOrders) ListByUser(ctx context.Context, userID int64, offset, limit int) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.Order
	for id := m.nextID; id > 0; id-- {
		if o, ok := m.orders[id]; ok && o.UserID == userID {
			result = append(result, o)
		}
	}
	if offset >= len(result) {
		return []*domain.Order{}, nil
	}
	result = result[offset:]
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockOrders) status(orderID int64) domain.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[orderID]; ok {
		return o.Status
	}
	return ""
}

func (m *mockOrders) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

type mockBalance struct {
	mu          sync.Mutex
	balance     decimal.Decimal
	getErr      error
	withdrawErr error
	withdrawals []decimal.Decimal
}

func (m *mockBalance) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance, m.getErr
}

func (m *mockBalance) Withdraw(ctx context.Context, userID int64, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.withdrawErr != nil {
		return m.withdrawErr
	}
	m.withdrawals = append(m.withdrawals, amount)
	m.balance = m.balance.Sub(amount)
	return nil
}

type mockNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (m *mockNotifier) Send(ctx context.Context, recipientID int64, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, message)
	return m.err
}

func (m *mockNotifier) sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}

type mockLocker struct {
	err      error
	acquired int
	released int
}

func (m *mockLocker) Acquire(ctx context.Context, userID int64) (func(), error) {
	if m.err != nil {
		return nil, m.err
	}
	m.acquired++
	return func() { m.released++ }, nil
}

type fixture struct {
	orders       *mockOrders
	balance      *mockBalance
	notifier     *mockNotifier
	bus          *events.InMemoryEventBus
	eventTypes   *[]string
	persistence  *saga.InMemoryPersistence
	orchestrator *saga.Orchestrator
	service      *OrderService
	deps         SagaDeps
}

func newFixture(balance string) *fixture {
	f := &fixture{
		orders:      newMockOrders(),
		balance:     &mockBalance{balance: decimal.RequireFromString(balance)},
		notifier:    &mockNotifier{},
		bus:         events.NewInMemoryEventBus(),
		persistence: saga.NewInMemoryPersistence(),
	}
	var mu sync.Mutex
	seen := []string{}
	f.eventTypes = &seen
	_ = f.bus.Subscribe(events.AllEvents, events.EventHandlerFunc(func(ctx context.Context, e events.Event) error {
		if e.AggregateType() == domain.AggregateType {
			mu.Lock()
			seen = append(seen, e.EventType())
			mu.Unlock()
		}
		return nil
	}))

	f.deps = SagaDeps{Orders: f.orders, Balance: f.balance, Notifier: f.notifier, Publisher: f.bus}
	definition, err := NewOrderSagaDefinition(f.deps)
	if err != nil {
		panic(err)
	}
	registry := saga.NewSagaRegistry()
	if err := registry.RegisterSaga(definition); err != nil {
		panic(err)
	}
	f.orchestrator = saga.NewOrchestrator(registry, f.persistence).WithPublisher(f.bus)
	f.service = NewOrderService(f.orchestrator, f.orders)
	return f
}

var errDatabaseDown = core.NewError(core.ErrInternal, "database is down")
