package infrastructure

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/akriventsev/ordersaga/framework/core"
)

// releaseScript удаляет ключ только если он принадлежит владельцу токена
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// UserLock распределенная блокировка пользователя на время саги
type UserLock struct {
	client      redis.UniversalClient
	prefix      string
	ttl         time.Duration
	waitTimeout time.Duration
	retryDelay  time.Duration
}

// NewUserLock создает блокировку поверх Redis
func NewUserLock(client redis.UniversalClient, ttl, waitTimeout time.Duration) *UserLock {
	return &UserLock{
		client:      client,
		prefix:      "ordersaga:lock:user:",
		ttl:         ttl,
		waitTimeout: waitTimeout,
		retryDelay:  50 * time.Millisecond,
	}
}

// Acquire ждет блокировку не дольше waitTimeout и возвращает функцию освобождения.
// Если блокировку получить не удалось, возвращается ошибка CONFLICT.
func (l *UserLock) Acquire(ctx context.Context, userID int64) (func(), error) {
	key := fmt.Sprintf("%s%d", l.prefix, userID)
	token := uuid.New().String()

	waitCtx, cancel := context.WithTimeout(ctx, l.waitTimeout)
	defer cancel()

	for {
		ok, err := l.client.SetNX(waitCtx, key, token, l.ttl).Result()
		if err != nil && waitCtx.Err() == nil {
			return nil, core.Wrap(err, core.ErrServiceUnavailable, "failed to acquire user lock")
		}
		if ok {
			return func() { l.release(key, token) }, nil
		}

		select {
		case <-waitCtx.Done():
			return nil, core.NewError(core.ErrConflict, "Another order for this user is being processed")
		case <-time.After(l.retryDelay):
		}
	}
}

func (l *UserLock) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		log.Printf("[user-lock] failed to release %s: %v", key, err)
	}
}
