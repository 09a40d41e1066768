// Package fsm предоставляет определения переходов для FSM.
package fsm

import (
	"context"
	"fmt"
)

// Guard проверяет, разрешен ли переход
type Guard func(ctx context.Context) (bool, error)

// Action выполняется при переходе между состояниями
type Action func(ctx context.Context, from, to string) error

// Transition переход из одного состояния в другое по событию
type Transition struct {
	from    string
	to      string
	event   string
	guard   Guard
	actions []Action
}

// NewTransition создает новый переход
func NewTransition(from, to, event string) *Transition {
	return &Transition{from: from, to: to, event: event}
}

// WithGuard добавляет охранник (guard) к переходу
func (t *Transition) WithGuard(guard Guard) *Transition {
	t.guard = guard
	return t
}

// WithActions добавляет действия к переходу
func (t *Transition) WithActions(actions ...Action) *Transition {
	t.actions = append(t.actions, actions...)
	return t
}

func (t *Transition) From() string  { return t.from }
func (t *Transition) To() string    { return t.to }
func (t *Transition) Event() string { return t.event }

// allowed проверяет guard перехода
func (t *Transition) allowed(ctx context.Context) (bool, error) {
	if t.guard == nil {
		return true, nil
	}
	return t.guard(ctx)
}

// execute выполняет действия перехода по порядку
func (t *Transition) execute(ctx context.Context) error {
	for i, action := range t.actions {
		if err := action(ctx, t.from, t.to); err != nil {
			return fmt.Errorf("action %d of %s->%s failed: %w", i, t.from, t.to, err)
		}
	}
	return nil
}

func transitionKey(from, event string) string {
	return from + ":" + event
}
