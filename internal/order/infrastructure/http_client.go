package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/akriventsev/ordersaga/framework/metrics"
	"github.com/akriventsev/ordersaga/framework/observability"
)

// DefaultRemoteTimeout таймаут одного вызова удаленного сервиса
const DefaultRemoteTimeout = 10 * time.Second

// remoteClient общий JSON клиент для billing и notification
type remoteClient struct {
	service string
	baseURL string
	client  *http.Client
	metrics *metrics.Metrics
}

func newRemoteClient(service, baseURL string, timeout time.Duration, m *metrics.Metrics) remoteClient {
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	return remoteClient{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		metrics: m,
	}
}

// do выполняет запрос с телом body (может быть nil). Ошибка возвращается только
// для сбоев транспорта: соединение, таймаут, некорректный URL.
func (c remoteClient) do(ctx context.Context, operation, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	observability.PropagateHeaders(ctx, req.Header)

	started := time.Now()
	resp, err := c.client.Do(req)
	c.record(ctx, operation, resp, err, time.Since(started))
	return resp, err
}

func (c remoteClient) record(ctx context.Context, operation string, resp *http.Response, err error, duration time.Duration) {
	if c.metrics == nil {
		return
	}
	outcome := "transport_error"
	if err == nil {
		outcome = fmt.Sprintf("http_%d", resp.StatusCode)
	}
	c.metrics.RecordRemoteCall(ctx, c.service, operation, outcome, duration)
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}
