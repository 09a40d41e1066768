package saga

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/ordersaga/framework/events"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func recordingStep(name string, log *callLog, execErr error, withCompensation bool) *BaseStep {
	step := NewBaseStep(name).WithExecute(func(ctx context.Context, sagaCtx SagaContext) error {
		log.add("exec:" + name)
		return execErr
	})
	if withCompensation {
		step.WithCompensate(func(ctx context.Context, sagaCtx SagaContext) error {
			log.add("comp:" + name)
			return nil
		})
	}
	return step
}

func newTestOrchestrator(t *testing.T, definition SagaDefinition) (*Orchestrator, *InMemoryPersistence) {
	t.Helper()
	registry := NewSagaRegistry()
	require.NoError(t, registry.RegisterSaga(definition))
	persistence := NewInMemoryPersistence()
	return NewOrchestrator(registry, persistence), persistence
}

func TestSaga_CompletesAllSteps(t *testing.T) {
	calls := &callLog{}
	definition, err := NewSagaBuilder("test").
		AddStep(recordingStep("a", calls, nil, true)).
		AddStep(recordingStep("b", calls, nil, true)).
		Build()
	require.NoError(t, err)

	orchestrator, persistence := newTestOrchestrator(t, definition)
	instance, err := orchestrator.Start(context.Background(), "test", nil)
	require.NoError(t, err)

	assert.Equal(t, SagaStatusCompleted, instance.Status())
	assert.Equal(t, []string{"exec:a", "exec:b"}, calls.list())
	assert.NotNil(t, instance.CompletedAt())

	stored, err := persistence.Load(context.Background(), instance.ID())
	require.NoError(t, err)
	assert.Equal(t, SagaStatusCompleted, stored.Status())

	history := instance.GetHistory()
	require.Len(t, history, 2)
	assert.Equal(t, 0, history[0].Seq)
	assert.Equal(t, StepStatusCompleted, history[1].Status)
}

func TestSaga_CompensatesCompletedStepsInReverse(t *testing.T) {
	calls := &callLog{}
	boom := errors.New("boom")
	definition, err := NewSagaBuilder("test").
		AddStep(recordingStep("a", calls, nil, true)).
		AddStep(recordingStep("b", calls, nil, false)).
		AddStep(recordingStep("c", calls, nil, true)).
		AddStep(recordingStep("d", calls, boom, true)).
		Build()
	require.NoError(t, err)

	orchestrator, _ := newTestOrchestrator(t, definition)
	instance, err := orchestrator.Start(context.Background(), "test", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "step d failed")
	assert.Equal(t, SagaStatusCompensated, instance.Status())
	assert.Equal(t, []string{"exec:a", "exec:b", "exec:c", "exec:d", "comp:c", "comp:a"}, calls.list())
}

func TestSaga_CompensationFailureEndsFailed(t *testing.T) {
	compErr := errors.New("cannot undo")
	stepErr := errors.New("step broke")
	definition, err := NewSagaBuilder("test").
		AddStep(NewBaseStep("a").
			WithExecute(func(context.Context, SagaContext) error { return nil }).
			WithCompensate(func(context.Context, SagaContext) error { return compErr })).
		AddStep(NewBaseStep("b").
			WithExecute(func(context.Context, SagaContext) error { return stepErr })).
		Build()
	require.NoError(t, err)

	orchestrator, _ := newTestOrchestrator(t, definition)
	instance, err := orchestrator.Start(context.Background(), "test", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, stepErr)
	assert.ErrorIs(t, err, compErr)
	assert.Equal(t, SagaStatusFailed, instance.Status())

	failed, err := orchestrator.ListByStatus(context.Background(), SagaStatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)

	require.NoError(t, orchestrator.Resolve(context.Background(), failed[0], "manually fixed"))
	assert.Equal(t, SagaStatusResolved, failed[0].Status())
	assert.Error(t, failed[0].Resolve(context.Background(), "again"))
}

func TestSaga_RetryPolicy(t *testing.T) {
	attempts := 0
	transient := errors.New("transient")
	step := NewBaseStep("flaky").
		WithExecute(func(context.Context, SagaContext) error {
			attempts++
			if attempts < 3 {
				return transient
			}
			return nil
		}).
		WithRetry(SimpleRetry(3, time.Millisecond))

	definition, err := NewSagaBuilder("retry").AddStep(step).Build()
	require.NoError(t, err)

	orchestrator, _ := newTestOrchestrator(t, definition)
	instance, err := orchestrator.Start(context.Background(), "retry", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 2, instance.GetHistory()[0].RetryAttempt)
}

func TestSaga_NoRetryRunsOnce(t *testing.T) {
	attempts := 0
	step := NewBaseStep("once").
		WithExecute(func(context.Context, SagaContext) error {
			attempts++
			return errors.New("nope")
		}).
		WithRetry(NoRetry())

	definition, err := NewSagaBuilder("once").
		WithRetryPolicy(SimpleRetry(5, time.Millisecond)).
		AddStep(step).
		Build()
	require.NoError(t, err)

	orchestrator, _ := newTestOrchestrator(t, definition)
	_, err = orchestrator.Start(context.Background(), "once", nil)
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestSaga_StepTimeout(t *testing.T) {
	step := NewBaseStep("slow").
		WithExecute(func(ctx context.Context, _ SagaContext) error {
			<-ctx.Done()
			return ctx.Err()
		}).
		WithTimeout(10 * time.Millisecond)

	definition, err := NewSagaBuilder("slow").AddStep(step).Build()
	require.NoError(t, err)

	orchestrator, _ := newTestOrchestrator(t, definition)
	_, err = orchestrator.Start(context.Background(), "slow", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSaga_ContextSharedBetweenSteps(t *testing.T) {
	definition, err := NewSagaBuilder("ctx").
		AddStep(NewBaseStep("write").WithExecute(func(_ context.Context, sagaCtx SagaContext) error {
			sagaCtx.Set("order_id", 42)
			return nil
		})).
		AddStep(NewBaseStep("read").WithExecute(func(_ context.Context, sagaCtx SagaContext) error {
			if sagaCtx.GetInt64("order_id") != 42 {
				return errors.New("order_id not propagated")
			}
			return nil
		})).
		Build()
	require.NoError(t, err)

	orchestrator, _ := newTestOrchestrator(t, definition)
	instance, err := orchestrator.Start(context.Background(), "ctx", nil)
	require.NoError(t, err)
	assert.Equal(t, instance.ID(), instance.Context().CorrelationID())
}

func TestSaga_PublishesLifecycleEvents(t *testing.T) {
	bus := events.NewInMemoryEventBus()
	var mu sync.Mutex
	var seen []string
	require.NoError(t, bus.Subscribe(events.AllEvents, events.EventHandlerFunc(func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.EventType())
		return nil
	})))

	definition, err := NewSagaBuilder("events").
		AddStep(NewBaseStep("only").WithExecute(func(context.Context, SagaContext) error { return nil })).
		Build()
	require.NoError(t, err)

	orchestrator, _ := newTestOrchestrator(t, definition)
	orchestrator.WithPublisher(bus)
	_, err = orchestrator.Start(context.Background(), "events", nil)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{EventSagaStarted, EventStepStarted, EventStepCompleted, EventSagaCompleted}, seen)
}

func TestSaga_ExecuteTwiceIsRejected(t *testing.T) {
	definition, err := NewSagaBuilder("twice").
		AddStep(NewBaseStep("only").WithExecute(func(context.Context, SagaContext) error { return nil })).
		Build()
	require.NoError(t, err)

	instance, err := NewBaseSaga("", definition, nil, Options{})
	require.NoError(t, err)
	require.NoError(t, instance.Execute(context.Background()))
	assert.Error(t, instance.Execute(context.Background()))
}

func TestSagaBuilder_Validation(t *testing.T) {
	_, err := NewSagaBuilder("empty").Build()
	assert.Error(t, err)

	_, err = NewSagaBuilder("dup").
		AddStep(NewBaseStep("a")).
		AddStep(NewBaseStep("a")).
		Build()
	assert.ErrorContains(t, err, "duplicate step name")

	_, err = NewSagaBuilder("").AddStep(NewBaseStep("a")).Build()
	assert.Error(t, err)
}

func TestSagaBuilder_AppliesDefaults(t *testing.T) {
	own := NewBaseStep("own").WithTimeout(time.Second)
	plain := NewBaseStep("plain")

	_, err := NewSagaBuilder("defaults").
		WithTimeout(5 * time.Second).
		WithRetryPolicy(SimpleRetry(2, time.Millisecond)).
		AddStep(own).
		AddStep(plain).
		Build()
	require.NoError(t, err)

	assert.Equal(t, time.Second, own.Timeout())
	assert.Equal(t, 5*time.Second, plain.Timeout())
	assert.Equal(t, 2, plain.RetryPolicy().MaxAttempts)
}

func TestRetryPolicy(t *testing.T) {
	retryable := errors.New("retryable")
	policy := ExponentialBackoff(4, 100*time.Millisecond, 300*time.Millisecond, 2)
	policy.RetryableErrors = []error{retryable}

	assert.True(t, policy.ShouldRetry(retryable, 1))
	assert.False(t, policy.ShouldRetry(errors.New("other"), 1))
	assert.False(t, policy.ShouldRetry(retryable, 4))

	assert.Equal(t, 100*time.Millisecond, policy.CalculateDelay(0))
	assert.Equal(t, 200*time.Millisecond, policy.CalculateDelay(1))
	assert.Equal(t, 300*time.Millisecond, policy.CalculateDelay(2))
}

func TestSagaContext_GetInt64(t *testing.T) {
	sagaCtx := NewSagaContext()
	sagaCtx.Set("int", 7)
	sagaCtx.Set("float", float64(8))
	sagaCtx.Set("number", json.Number("9"))
	sagaCtx.Set("string", "10")

	assert.Equal(t, int64(7), sagaCtx.GetInt64("int"))
	assert.Equal(t, int64(8), sagaCtx.GetInt64("float"))
	assert.Equal(t, int64(9), sagaCtx.GetInt64("number"))
	assert.Equal(t, int64(0), sagaCtx.GetInt64("string"))
	assert.Equal(t, int64(0), sagaCtx.GetInt64("missing"))
}

func TestSagaRegistry(t *testing.T) {
	registry := NewSagaRegistry()
	definition := NewBaseSagaDefinition("one", NewBaseStep("a"))
	require.NoError(t, registry.RegisterSaga(definition))
	assert.Error(t, registry.RegisterSaga(definition))

	got, err := registry.GetSaga("one")
	require.NoError(t, err)
	assert.Equal(t, "one", got.Name())

	_, err = registry.GetSaga("missing")
	assert.Error(t, err)
	assert.Equal(t, []string{"one"}, registry.Names())
}
