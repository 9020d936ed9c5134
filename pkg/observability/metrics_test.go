package observability

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
)

func TestInMemoryMetrics_TagOrderIndependent(t *testing.T) {
	m := NewInMemoryMetrics()

	m.Counter(MetricCreditCharges, 1, T("action", "enrich"), T("result", "ok"))
	m.Counter(MetricCreditCharges, 2, T("result", "ok"), T("action", "enrich"))

	assert.Equal(t, int64(3), m.GetCounter(MetricCreditCharges, T("action", "enrich"), T("result", "ok")))
	assert.Zero(t, m.GetCounter(MetricCreditCharges))
}

func TestStopwatch_ObserveMergesTags(t *testing.T) {
	m := NewInMemoryMetrics()

	sw := StartStopwatch(m, MetricProviderLatency, T("provider", "apollo"))
	sw.Observe(T("status", "ok"))
	sw.Observe(T("status", "failed"))

	assert.Len(t, m.GetTimings(MetricProviderLatency, T("provider", "apollo"), T("status", "ok")), 1)
	assert.Len(t, m.GetTimings(MetricProviderLatency, T("status", "failed"), T("provider", "apollo")), 1)
	assert.Empty(t, m.GetTimings(MetricProviderLatency, T("provider", "apollo")))

	assert.NotPanics(t, func() { StartStopwatch(nil, MetricWaterfallDuration).Observe() })
}

func TestPrometheusMetrics_ExposesRecordedSeries(t *testing.T) {
	m := NewPrometheusMetrics()

	m.Counter(MetricCreditCharges, 3, T("action", "scrape"))
	m.Gauge(MetricCreditsConsumed, 42)
	m.Timing(MetricWaterfallDuration, 150*time.Millisecond, T("state", "complete"))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `birvanoio_credits_charges_total{action="scrape"} 3`)
	assert.Contains(t, text, "birvanoio_credits_consumed 42")
	assert.Contains(t, text, `birvanoio_waterfall_duration_seconds_count{state="complete"} 1`)
}

func TestPrometheusMetrics_MismatchedLabelsDropped(t *testing.T) {
	m := NewPrometheusMetrics()

	m.Counter(MetricCreditChecks, 1, T("action", "scrape"))
	assert.NotPanics(t, func() {
		m.Counter(MetricCreditChecks, 1, T("feature", "crm_export"))
	})
}

func TestHealthRegistry_AggregatesStatus(t *testing.T) {
	reg := NewHealthRegistry()
	reg.Register("database", DatabaseHealthChecker(func(context.Context) error { return nil }))
	reg.Register("redis", RedisHealthChecker(func(context.Context) error { return errors.New("refused") }))

	health := reg.Check(context.Background())
	assert.Equal(t, HealthStatusDegraded, health.Status)
	assert.Equal(t, HealthStatusHealthy, health.Checks["database"].Status)

	reg.Register("database", DatabaseHealthChecker(func(context.Context) error { return errors.New("down") }))
	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
