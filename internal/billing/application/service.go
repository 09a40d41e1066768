// Package application сценарии billing-service.
package application

import (
	"context"
	"log"

	"github.com/shopspring/decimal"

	"github.com/akriventsev/ordersaga/framework/events"
	"github.com/akriventsev/ordersaga/internal/billing/domain"
)

// AccountRepository хранилище счетов
type AccountRepository interface {
	GetOrCreate(ctx context.Context, userID int64) (*domain.Account, error)
	Deposit(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error)
	Withdraw(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error)
}

// BillingService операции над балансом
type BillingService struct {
	accounts  AccountRepository
	publisher events.EventPublisher
}

// NewBillingService создает сервис. publisher может быть nil.
func NewBillingService(accounts AccountRepository, publisher events.EventPublisher) *BillingService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &BillingService{accounts: accounts, publisher: publisher}
}

// Balance возвращает счет пользователя, создавая его при первом запросе
func (s *BillingService) Balance(ctx context.Context, userID int64) (*domain.Account, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return nil, err
	}
	return s.accounts.GetOrCreate(ctx, userID)
}

// Deposit пополняет счет
func (s *BillingService) Deposit(ctx context.Context, userID int64, amount decimal.Decimal) (*domain.Operation, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return nil, err
	}
	amount, err := domain.NormalizeAmount(amount)
	if err != nil {
		return nil, err
	}
	balance, err := s.accounts.Deposit(ctx, userID, amount)
	if err != nil {
		return nil, err
	}
	return s.record(ctx, &domain.Operation{UserID: userID, Operation: domain.OperationDeposit, Amount: amount, NewBalance: balance}), nil
}

// Withdraw списывает сумму, если на счете ее хватает
func (s *BillingService) Withdraw(ctx context.Context, userID int64, amount decimal.Decimal) (*domain.Operation, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return nil, err
	}
	amount, err := domain.NormalizeAmount(amount)
	if err != nil {
		return nil, err
	}
	balance, err := s.accounts.Withdraw(ctx, userID, amount)
	if err != nil {
		return nil, err
	}
	return s.record(ctx, &domain.Operation{UserID: userID, Operation: domain.OperationWithdraw, Amount: amount, NewBalance: balance}), nil
}

func (s *BillingService) record(ctx context.Context, op *domain.Operation) *domain.Operation {
	log.Printf("[billing] %s %s for user %d, balance %s", op.Operation, op.Amount.StringFixed(2), op.UserID, op.NewBalance.StringFixed(2))
	if err := s.publisher.Publish(ctx, domain.NewAccountEvent(op)); err != nil {
		log.Printf("[billing] failed to publish %s event for user %d: %v", op.Operation, op.UserID, err)
	}
	return op
}
