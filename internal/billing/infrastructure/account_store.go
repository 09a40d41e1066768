// Package infrastructure хранилище счетов billing-service в PostgreSQL.
package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/akriventsev/ordersaga/framework/core"
	"github.com/akriventsev/ordersaga/internal/billing/domain"
)

// DB подмножество pgxpool.Pool, которое использует хранилище
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AccountStore счета пользователей
type AccountStore struct {
	db  DB
	now func() time.Time
}

// NewAccountStore создает хранилище счетов
func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// GetOrCreate возвращает счет, создавая его с нулевым балансом при первом обращении
func (s *AccountStore) GetOrCreate(ctx context.Context, userID int64) (*domain.Account, error) {
	now := s.now()
	var (
		account domain.Account
		balance string
	)
	err := s.db.QueryRow(ctx, `
		INSERT INTO accounts (user_id, balance, created_at, updated_at)
		VALUES ($1, 0, $2, $2)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING user_id, balance::text, created_at, updated_at`,
		userID, now,
	).Scan(&account.UserID, &balance, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, core.Wrap(err, core.ErrInternal, fmt.Sprintf("failed to load account %d", userID))
	}
	if account.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, core.Wrap(err, core.ErrInternal, "invalid balance value")
	}
	return &account, nil
}

// Deposit зачисляет сумму, создавая счет при необходимости, и возвращает новый баланс
func (s *AccountStore) Deposit(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance string
	err := s.db.QueryRow(ctx, `
		INSERT INTO accounts (user_id, balance, created_at, updated_at)
		VALUES ($1, $2::numeric, $3, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = accounts.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at
		RETURNING balance::text`,
		userID, amount.StringFixed(2), s.now(),
	).Scan(&balance)
	if err != nil {
		return decimal.Zero, core.Wrap(err, core.ErrInternal, fmt.Sprintf("failed to deposit to account %d", userID))
	}
	return parseBalance(balance)
}

// Withdraw списывает сумму одним условным UPDATE: проверка и списание
// атомарны, поэтому конкурентные списания не уводят баланс в минус.
func (s *AccountStore) Withdraw(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance string
	err := s.db.QueryRow(ctx, `
		UPDATE accounts SET balance = balance - $2::numeric, updated_at = $3
		WHERE user_id = $1 AND balance >= $2::numeric
		RETURNING balance::text`,
		userID, amount.StringFixed(2), s.now(),
	).Scan(&balance)
	if err == nil {
		return parseBalance(balance)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, core.Wrap(err, core.ErrInternal, fmt.Sprintf("failed to withdraw from account %d", userID))
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
		return decimal.Zero, core.Wrap(err, core.ErrInternal, fmt.Sprintf("failed to load account %d", userID))
	}
	if !exists {
		return decimal.Zero, domain.ErrAccountNotFound
	}
	return decimal.Zero, domain.ErrInsufficientFunds
}

// Ping проверяет доступность базы
func (s *AccountStore) Ping(ctx context.Context) error {
	_, err := s.db.Exec(ctx, "SELECT 1")
	return err
}

func parseBalance(raw string) (decimal.Decimal, error) {
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, core.Wrap(err, core.ErrInternal, "invalid balance value")
	}
	return balance, nil
}
