// Package fsm предоставляет реализацию конечного автомата для саг и сущностей.
package fsm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNoTransition нет перехода из текущего состояния по событию
	ErrNoTransition = errors.New("no transition")
	// ErrTransitionDenied guard запретил переход
	ErrTransitionDenied = errors.New("transition denied")
	// ErrUnknownState состояние не зарегистрировано
	ErrUnknownState = errors.New("unknown state")
)

// FSM конечный автомат
type FSM struct {
	mu          sync.RWMutex
	current     string
	initial     string
	states      map[string]bool // имя -> терминальное
	transitions map[string][]*Transition
	history     []StateHistory
	maxHistory  int
}

// StateHistory запись истории переходов
type StateHistory struct {
	From      string
	To        string
	Event     string
	Timestamp time.Time
}

// Config конфигурация FSM
type Config struct {
	MaxHistory int
}

// NewFSM создает новый конечный автомат
func NewFSM(initialState string, config ...Config) *FSM {
	cfg := Config{}
	if len(config) > 0 {
		cfg = config[0]
	}
	return &FSM{
		current:     initialState,
		initial:     initialState,
		states:      map[string]bool{initialState: false},
		transitions: make(map[string][]*Transition),
		maxHistory:  cfg.MaxHistory,
	}
}

// AddState регистрирует состояние
func (f *FSM) AddState(name string) *FSM {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.states[name]; !ok {
		f.states[name] = false
	}
	return f
}

// AddTerminalState регистрирует состояние, из которого нет выхода
func (f *FSM) AddTerminalState(name string) *FSM {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[name] = true
	return f
}

// AddTransition добавляет переход в автомат
func (f *FSM) AddTransition(t *Transition) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	terminal, ok := f.states[t.from]
	if !ok {
		return fmt.Errorf("from state %s: %w", t.from, ErrUnknownState)
	}
	if terminal {
		return fmt.Errorf("state %s is terminal", t.from)
	}
	if _, ok := f.states[t.to]; !ok {
		f.states[t.to] = false
	}

	key := transitionKey(t.from, t.event)
	f.transitions[key] = append(f.transitions[key], t)
	return nil
}

// Current возвращает текущее состояние
func (f *FSM) Current() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// IsTerminal проверяет, находится ли автомат в терминальном состоянии
func (f *FSM) IsTerminal() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.states[f.current]
}

// Restore устанавливает текущее состояние без переходов (загрузка из хранилища)
func (f *FSM) Restore(state string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.states[state]; !ok {
		return fmt.Errorf("restore %s: %w", state, ErrUnknownState)
	}
	f.current = state
	return nil
}

// CanTransition проверяет возможность перехода из текущего состояния по событию
func (f *FSM) CanTransition(ctx context.Context, event string) (bool, error) {
	f.mu.RLock()
	transitions := f.transitions[transitionKey(f.current, event)]
	f.mu.RUnlock()

	for _, t := range transitions {
		ok, err := t.allowed(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Trigger запускает событие и выполняет переход, если возможно
func (f *FSM) Trigger(ctx context.Context, event string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	current := f.current
	transitions := f.transitions[transitionKey(current, event)]
	if len(transitions) == 0 {
		return fmt.Errorf("from state %s for event %s: %w", current, event, ErrNoTransition)
	}

	var selected *Transition
	for _, t := range transitions {
		ok, err := t.allowed(ctx)
		if err != nil {
			return fmt.Errorf("guard check failed: %w", err)
		}
		if ok {
			selected = t
			break
		}
	}
	if selected == nil {
		return fmt.Errorf("from state %s for event %s: %w", current, event, ErrTransitionDenied)
	}

	if err := selected.execute(ctx); err != nil {
		return fmt.Errorf("transition execution failed: %w", err)
	}

	f.current = selected.to
	f.addHistory(current, selected.to, event)
	return nil
}

// addHistory добавляет запись в историю
func (f *FSM) addHistory(from, to, event string) {
	if f.maxHistory <= 0 {
		return
	}
	f.history = append(f.history, StateHistory{From: from, To: to, Event: event, Timestamp: time.Now()})
	if len(f.history) > f.maxHistory {
		f.history = f.history[len(f.history)-f.maxHistory:]
	}
}

// History возвращает историю переходов
func (f *FSM) History() []StateHistory {
	f.mu.RLock()
	defer f.mu.RUnlock()

	result := make([]StateHistory, len(f.history))
	copy(result, f.history)
	return result
}

// Reset сбрасывает FSM в начальное состояние
func (f *FSM) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.initial
	f.history = nil
}
