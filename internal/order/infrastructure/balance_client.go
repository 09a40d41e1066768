package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/akriventsev/ordersaga/framework/core"
	"github.com/akriventsev/ordersaga/framework/metrics"
)

// BalanceClient клиент billing-service
type BalanceClient struct {
	remote remoteClient
}

// NewBalanceClient создает клиент billing-service
func NewBalanceClient(baseURL string, timeout time.Duration, m *metrics.Metrics) *BalanceClient {
	return &BalanceClient{remote: newRemoteClient("billing", baseURL, timeout, m)}
}

type balanceResponse struct {
	UserID  int64            `json:"user_id"`
	Balance *decimal.Decimal `json:"balance"`
}

type withdrawRequest struct {
	Amount json.Number `json:"amount"`
}

// GetBalance читает баланс пользователя
func (c *BalanceClient) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	resp, err := c.remote.do(ctx, "get_balance", http.MethodGet, fmt.Sprintf("/api/v1/balance/%d", userID), nil)
	if err != nil {
		return decimal.Zero, core.Wrap(err, core.ErrServiceUnavailable, "Failed to connect to billing service: "+err.Error())
	}
	defer drain(resp)

	switch {
	case isSuccess(resp.StatusCode):
	case resp.StatusCode == http.StatusNotFound:
		return decimal.Zero, core.Errorf(core.ErrNotFound, "Billing service error: HTTP %d", resp.StatusCode)
	default:
		return decimal.Zero, core.Errorf(core.ErrRemote, "Billing service error: HTTP %d", resp.StatusCode)
	}

	var body balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, core.Wrap(err, core.ErrInternal, "Failed to get user balance: "+err.Error())
	}
	// ответ без баланса не равен нулевому балансу
	if body.Balance == nil {
		return decimal.Zero, core.NewError(core.ErrInternal, "Failed to get user balance: balance is missing")
	}
	return *body.Balance, nil
}

// Withdraw списывает amount со счета пользователя. Запрос не повторяется.
func (c *BalanceClient) Withdraw(ctx context.Context, userID int64, amount decimal.Decimal) error {
	resp, err := c.remote.do(ctx, "withdraw", http.MethodPost, fmt.Sprintf("/api/v1/withdraw/%d", userID), withdrawRequest{Amount: json.Number(amount.StringFixed(2))})
	if err != nil {
		return core.Wrap(err, core.ErrServiceUnavailable, "Failed to process payment: billing service unavailable")
	}
	defer drain(resp)

	switch {
	case isSuccess(resp.StatusCode):
		return nil
	case resp.StatusCode == http.StatusBadRequest:
		return core.NewError(core.ErrInsufficientFunds, "Insufficient funds or invalid amount")
	case resp.StatusCode == http.StatusNotFound:
		return core.NewError(core.ErrNotFound, "User not found in billing system")
	case resp.StatusCode >= http.StatusBadRequest:
		log.Printf("[billing-client] withdraw for user %d returned HTTP %d", userID, resp.StatusCode)
		return core.NewError(core.ErrRemote, "Payment processing failed: billing service error")
	default:
		return core.NewError(core.ErrInternal, "Payment processing failed: internal error")
	}
}

// HealthURL адрес /health billing-service
func (c *BalanceClient) HealthURL() string {
	return c.remote.baseURL + "/health"
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
