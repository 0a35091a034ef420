package monitor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/webhook-cronjob/internal/webhook"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics(t *testing.T) {
	m, err := NewMetrics(zaptest.NewLogger(t))
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	started := time.Now()
	outcomes := []*webhook.Outcome{
		{StartedAt: started, CompletedAt: started.Add(120 * time.Millisecond), StatusCode: 200},
		{StartedAt: started, CompletedAt: started.Add(80 * time.Millisecond), StatusCode: 500,
			Err: &webhook.HTTPStatusError{StatusCode: 500, StatusText: "Internal Server Error"}},
		{StartedAt: started, CompletedAt: started.Add(10 * time.Second),
			Err: &webhook.TransportError{Message: "deadline exceeded", Timeout: true}},
		{StartedAt: started, CompletedAt: started,
			Err: &webhook.UnknownError{Err: errors.New("boom")}},
	}
	for _, outcome := range outcomes {
		m.Observe(context.Background(), outcome)
	}

	body := scrape(t, m)

	assert.Contains(t, body, "webhook_dispatches")
	assert.Contains(t, body, "webhook_dispatch_duration")
	for _, kind := range []string{"success", "http_status", "timeout", "unknown"} {
		assert.Contains(t, body, `outcome="`+kind+`"`)
	}
	assert.NotContains(t, body, `outcome="transport"`)
	assert.Contains(t, body, "host_memory_usage")
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	first, err := NewMetrics(zaptest.NewLogger(t))
	require.NoError(t, err)
	defer first.Shutdown(context.Background())

	second, err := NewMetrics(zaptest.NewLogger(t))
	require.NoError(t, err)
	defer second.Shutdown(context.Background())

	started := time.Now()
	first.Observe(context.Background(), &webhook.Outcome{StartedAt: started, CompletedAt: started, StatusCode: 204})

	assert.Contains(t, scrape(t, first), `outcome="success"`)
	assert.NotContains(t, scrape(t, second), `outcome="success"`)
}
