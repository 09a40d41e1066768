package container

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// Component запускаемая часть сервиса
type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Unit именованный компонент для Group
type Unit struct {
	Name      string
	Component Component
}

// Group запускает компоненты по порядку и останавливает в обратном
type Group struct {
	mu      sync.Mutex
	started []Unit
}

// Start запускает компоненты по очереди. При ошибке уже запущенные
// остаются в группе и останавливаются через Stop.
func (g *Group) Start(ctx context.Context, units ...Unit) error {
	for _, u := range units {
		if err := u.Component.Start(ctx); err != nil {
			return fmt.Errorf("failed to start %s: %w", u.Name, err)
		}
		g.mu.Lock()
		g.started = append(g.started, u)
		g.mu.Unlock()
		log.Printf("[container] %s started", u.Name)
	}
	return nil
}

// Stop останавливает все запущенные компоненты, даже если часть из них вернула ошибку
func (g *Group) Stop(ctx context.Context) error {
	g.mu.Lock()
	started := g.started
	g.started = nil
	g.mu.Unlock()

	var errs []error
	for i := len(started) - 1; i >= 0; i-- {
		u := started[i]
		if err := u.Component.Stop(ctx); err != nil {
			log.Printf("[container] failed to stop %s: %v", u.Name, err)
			errs = append(errs, fmt.Errorf("%s: %w", u.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Background оборачивает фоновый цикл в Component: Start запускает run
// в горутине, Stop отменяет его контекст и ждет выхода.
func Background(run func(ctx context.Context)) Component {
	return &background{run: run}
}

type background struct {
	run    func(ctx context.Context)
	cancel context.CancelFunc
	done   chan struct{}
}

func (b *background) Start(ctx context.Context) error {
	if b.done != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel
	b.done = make(chan struct{})
	go func() {
		defer close(b.done)
		b.run(runCtx)
	}()
	return nil
}

func (b *background) Stop(ctx context.Context) error {
	if b.done == nil {
		return nil
	}
	b.cancel()
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
