package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func TestCollectorsAreExposed(t *testing.T) {
	m := New()
	m.EventReceived("view")
	m.EventReceived("view")
	m.EventRejected("url")
	m.WriteFailed("append_event")
	m.GeoLookupFailed()
	m.LiveDropped("a.com")
	m.SetOnline("a.com", 3)
	m.ObserveIngest(0.01)

	body := scrape(t, m)
	assert.Contains(t, body, `footprint_events_received_total{type="view"} 2`)
	assert.Contains(t, body, `footprint_events_rejected_total{field="url"} 1`)
	assert.Contains(t, body, `footprint_repository_write_failures_total{op="append_event"} 1`)
	assert.Contains(t, body, `footprint_geo_lookup_failures_total 1`)
	assert.Contains(t, body, `footprint_live_events_dropped_total{domain="a.com"} 1`)
	assert.Contains(t, body, `footprint_online_visitors{domain="a.com"} 3`)
	assert.Contains(t, body, `footprint_ingest_duration_seconds_count 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.EventReceived("view")
		m.EventRejected("url")
		m.WriteFailed("x")
		m.GeoLookupFailed()
		m.LiveDropped("a.com")
		m.SetOnline("a.com", 1)
		m.ObserveIngest(0.1)
	})
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.EventReceived("click")

	assert.Contains(t, scrape(t, a), `footprint_events_received_total{type="click"} 1`)
	assert.NotContains(t, scrape(t, b), `type="click"`)
}
