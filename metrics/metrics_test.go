package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *MetricsServer) string {
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	m, err := New("test", "")
	require.NoError(t, err)

	mux := chi.NewRouter()
	mux.Use(m.Middleware)
	mux.Get("/api/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	})

	for _, id := range []string{"1", "2"} {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/items/"+id, nil))
		require.Equal(t, http.StatusNotFound, rr.Code)
	}

	out := scrape(t, m)
	assert.Contains(t, out, `test_http_requests_total{method="GET",route="/api/items/{id}",status="404"} 2`)
	assert.Contains(t, out, "test_http_request_duration_seconds_bucket")
}

func TestGauge(t *testing.T) {
	m, err := New("test", "")
	require.NoError(t, err)

	height := 41.0
	require.NoError(t, m.Gauge("ledger_height", "Committed operations.", func() float64 { return height }))
	height++
	assert.Contains(t, scrape(t, m), "test_ledger_height 42")

	assert.Error(t, m.Gauge("ledger_height", "Duplicate.", func() float64 { return 0 }))
}
