package infrastructure

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/ordersaga/framework/adapters/messagebus"
	"github.com/akriventsev/ordersaga/framework/adapters/transport"
	"github.com/akriventsev/ordersaga/framework/core"
	"github.com/akriventsev/ordersaga/framework/observability"
	bus "github.com/akriventsev/ordersaga/framework/transport"
)

func billingStub(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBalanceClient_GetBalance(t *testing.T) {
	var path, correlation string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		correlation = r.Header.Get(observability.CorrelationIDHeader)
		_, _ = w.Write([]byte(`{"user_id":7,"balance":100.5}`))
	}))
	defer srv.Close()

	ctx := observability.InjectCorrelationID(context.Background(), "corr-7")
	balance, err := NewBalanceClient(srv.URL+"/", time.Second, nil).GetBalance(ctx, 7)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("100.5").Equal(balance))
	assert.Equal(t, "/api/v1/balance/7", path)
	assert.Equal(t, "corr-7", correlation)
}

func TestBalanceClient_GetBalanceErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   string
		detail string
		http   int
	}{
		{"not found", http.StatusNotFound, `{"detail":"x"}`, core.ErrNotFound, "Billing service error: HTTP 404", 404},
		{"server error", http.StatusInternalServerError, ``, core.ErrRemote, "Billing service error: HTTP 500", 502},
		{"bad body", http.StatusOK, `not json`, core.ErrInternal, "", 500},
		{"empty object", http.StatusOK, `{}`, core.ErrInternal, "Failed to get user balance: balance is missing", 500},
		{"no balance field", http.StatusOK, `{"user_id":1}`, core.ErrInternal, "Failed to get user balance: balance is missing", 500},
		{"null balance", http.StatusOK, `{"user_id":1,"balance":null}`, core.ErrInternal, "Failed to get user balance: balance is missing", 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := billingStub(t, tt.status, tt.body)
			_, err := NewBalanceClient(srv.URL, time.Second, nil).GetBalance(context.Background(), 1)
			require.Error(t, err)
			assert.Equal(t, tt.code, core.CodeOf(err))
			assert.Equal(t, tt.http, transport.StatusOf(err))
			if tt.detail != "" {
				assert.Equal(t, tt.detail, transport.DetailOf(err))
			} else {
				assert.Contains(t, transport.DetailOf(err), "Failed to get user balance: ")
			}
		})
	}
}

func TestBalanceClient_Unreachable(t *testing.T) {
	srv := billingStub(t, http.StatusOK, `{}`)
	url := srv.URL
	srv.Close()

	client := NewBalanceClient(url, time.Second, nil)
	_, err := client.GetBalance(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, transport.StatusOf(err))
	assert.Contains(t, transport.DetailOf(err), "Failed to connect to billing service: ")

	err = client.Withdraw(context.Background(), 1, decimal.NewFromInt(5))
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, transport.StatusOf(err))
	assert.Equal(t, "Failed to process payment: billing service unavailable", transport.DetailOf(err))
}

func TestBalanceClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	_, err := NewBalanceClient(srv.URL, 50*time.Millisecond, nil).GetBalance(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, core.ErrServiceUnavailable, core.CodeOf(err))
}

func TestBalanceClient_Withdraw(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/withdraw/7", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"user_id":7,"operation":"withdraw","amount":50,"new_balance":50}`))
	}))
	defer srv.Close()

	require.NoError(t, NewBalanceClient(srv.URL, time.Second, nil).Withdraw(context.Background(), 7, decimal.NewFromInt(50)))
	assert.Equal(t, 50.0, body["amount"])
}

func TestBalanceClient_WithdrawErrors(t *testing.T) {
	tests := []struct {
		status int
		http   int
		detail string
	}{
		{http.StatusBadRequest, 400, "Insufficient funds or invalid amount"},
		{http.StatusNotFound, 404, "User not found in billing system"},
		{http.StatusUnprocessableEntity, 502, "Payment processing failed: billing service error"},
		{http.StatusInternalServerError, 502, "Payment processing failed: billing service error"},
	}
	for _, tt := range tests {
		srv := billingStub(t, tt.status, `{"detail":"x"}`)
		err := NewBalanceClient(srv.URL, time.Second, nil).Withdraw(context.Background(), 1, decimal.NewFromInt(1))
		require.Error(t, err)
		assert.Equal(t, tt.http, transport.StatusOf(err), "status %d", tt.status)
		assert.Equal(t, tt.detail, transport.DetailOf(err))
	}
}

func TestNotificationClient_Send(t *testing.T) {
	var received NotificationMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/notification/send", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := NewNotificationClient(srv.URL, time.Second, nil)
	require.NoError(t, client.Send(context.Background(), 7, "hello"))
	assert.Equal(t, NotificationMessage{RecipientID: 7, Message: "hello"}, received)
	assert.Equal(t, srv.URL+"/health", client.HealthURL())

	failing := billingStub(t, http.StatusServiceUnavailable, ``)
	err := NewNotificationClient(failing.URL, time.Second, nil).Send(context.Background(), 7, "hello")
	assert.Equal(t, core.ErrRemote, core.CodeOf(err))
}

func TestBusNotifier_Send(t *testing.T) {
	adapter := messagebus.NewInMemoryAdapter(messagebus.DefaultInMemoryConfig())
	ctx := context.Background()
	require.NoError(t, adapter.Start(ctx))

	var got *bus.Message
	require.NoError(t, adapter.Subscribe(ctx, NotificationSubject, func(ctx context.Context, msg *bus.Message) error {
		got = msg
		return nil
	}))

	ctx = observability.InjectCorrelationID(ctx, "corr-1")
	require.NoError(t, NewBusNotifier(adapter).Send(ctx, 3, "Order 1 paid"))

	require.NotNil(t, got)
	assert.JSONEq(t, `{"recipient_id":3,"message":"Order 1 paid"}`, string(got.Data))
	assert.Equal(t, "corr-1", got.Headers["correlation_id"])
}
