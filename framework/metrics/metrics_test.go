package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupMetrics_ExposesCounters(t *testing.T) {
	registry := promclient.NewRegistry()
	provider, err := SetupMetrics(MetricsConfig{ServiceName: "order-service", Registry: registry})
	require.NoError(t, err)
	defer func() { _ = ShutdownMetrics(context.Background(), provider) }()

	m, err := NewMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordSaga(ctx, "order_creation", "completed", 20*time.Millisecond)
	m.RecordStep(ctx, "order_creation", "create_order", time.Millisecond, true)
	m.RecordRemoteCall(ctx, "billing", "get_balance", "ok", time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "sagas_total")
	assert.Contains(t, body, "saga_steps_total")
	assert.Contains(t, body, "remote_calls_total")
}

func TestShutdownMetrics_NilProvider(t *testing.T) {
	assert.NoError(t, ShutdownMetrics(context.Background(), nil))
}
