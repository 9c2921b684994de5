package observability

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_BusinessCounters(t *testing.T) {
	m := NewMetrics()

	m.SignIn("success")
	m.SignIn("success")
	m.SignIn("rejected")
	m.TokenRedemption("viewer", "expired")

	body := scrape(t, m)
	assert.Contains(t, body, `harena_signins_total{outcome="success"} 2`)
	assert.Contains(t, body, `harena_signins_total{outcome="rejected"} 1`)
	assert.Contains(t, body, `harena_token_redemptions_total{kind="viewer",outcome="expired"} 1`)
}

func TestMetrics_HandlerExposesRegistry(t *testing.T) {
	m := NewMetrics()
	m.ObserveRequest("GET", "/api/quests", 200, 15*time.Millisecond)
	m.RateLimited()

	body := scrape(t, m)
	assert.Contains(t, body, `harena_http_requests_total{method="GET",route="/api/quests",status="200"} 1`)
	assert.Contains(t, body, "harena_rate_limited_requests_total 1")
	assert.Contains(t, body, "go_goroutines")
}

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
