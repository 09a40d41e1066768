package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/ordersaga/framework/core"
	"github.com/akriventsev/ordersaga/framework/observability"
	"github.com/akriventsev/ordersaga/internal/billing/application"
	"github.com/akriventsev/ordersaga/internal/billing/domain"
	orderinfra "github.com/akriventsev/ordersaga/internal/order/infrastructure"
)

type memoryAccounts struct {
	mu       sync.Mutex
	balances map[int64]decimal.Decimal
}

func (m *memoryAccounts) GetOrCreate(ctx context.Context, userID int64) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[userID]; !ok {
		m.balances[userID] = decimal.Zero
	}
	return &domain.Account{UserID: userID, Balance: m.balances[userID]}, nil
}

func (m *memoryAccounts) Deposit(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = m.balances[userID].Add(amount)
	return m.balances[userID], nil
}

func (m *memoryAccounts) Withdraw(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[userID]
	if !ok {
		return decimal.Zero, domain.ErrAccountNotFound
	}
	if balance.LessThan(amount) {
		return decimal.Zero, domain.ErrInsufficientFunds
	}
	m.balances[userID] = balance.Sub(amount)
	return m.balances[userID], nil
}

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	service := application.NewBillingService(&memoryAccounts{balances: make(map[int64]decimal.Decimal)}, nil)
	require.NoError(t, Setup(router, NewBillingHandler(service), observability.NewHealthChecker("billing-service", time.Second)))
	return router
}

func call(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestBalance_AutoCreatesAccount(t *testing.T) {
	router := setupRouter(t)

	w := call(router, http.MethodGet, "/api/v1/balance/4", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id": 4, "balance": 0.00}`, w.Body.String())
}

func TestDepositAndWithdraw(t *testing.T) {
	router := setupRouter(t)

	w := call(router, http.MethodPost, "/api/v1/deposit/4", `{"amount": 100}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id": 4, "operation": "deposit", "amount": 100, "new_balance": 100}`, w.Body.String())

	w = call(router, http.MethodPost, "/api/v1/withdraw/4", `{"amount": 40.5}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id": 4, "operation": "withdraw", "amount": 40.5, "new_balance": 59.5}`, w.Body.String())
}

func TestWithdraw_Errors(t *testing.T) {
	router := setupRouter(t)

	w := call(router, http.MethodPost, "/api/v1/withdraw/4", `{"amount": 10}`)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"detail": "Account not found"}`, w.Body.String())

	call(router, http.MethodPost, "/api/v1/deposit/4", `{"amount": 5}`)
	w = call(router, http.MethodPost, "/api/v1/withdraw/4", `{"amount": 10}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"detail": "Insufficient funds"}`, w.Body.String())

	w = call(router, http.MethodPost, "/api/v1/withdraw/4", `{"amount": 0}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = call(router, http.MethodPost, "/api/v1/withdraw/4", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

// Клиент order-service поверх настоящих обработчиков billing
func TestBalanceClientContract(t *testing.T) {
	server := httptest.NewServer(setupRouter(t))
	defer server.Close()

	client := orderinfra.NewBalanceClient(server.URL, time.Second, nil)
	ctx := context.Background()

	balance, err := client.GetBalance(ctx, 9)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	err = client.Withdraw(ctx, 9, decimal.RequireFromString("10"))
	require.Error(t, err)
	assert.Equal(t, core.ErrInsufficientFunds, core.CodeOf(err))

	err = client.Withdraw(ctx, 10, decimal.RequireFromString("10"))
	require.Error(t, err)
	assert.Equal(t, core.ErrNotFound, core.CodeOf(err))

	resp, err := http.Post(server.URL+"/api/v1/deposit/9", "application/json", strings.NewReader(`{"amount": 75}`))
	require.NoError(t, err)
	var op map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&op))
	resp.Body.Close()
	assert.Equal(t, float64(75), op["new_balance"])

	require.NoError(t, client.Withdraw(ctx, 9, decimal.RequireFromString("50")))
	balance, err = client.GetBalance(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, "25.00", balance.StringFixed(2))
}
