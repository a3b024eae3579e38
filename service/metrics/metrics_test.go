package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsRecordsNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordEtherscanCall("tokentx", "ok", 0.1)
		m.RecordRecordsFetched(3)
		m.RecordFetchCycle("manual", "success", 0.2)
		m.RecordPollSkipped("interval")
		m.SetAutoRefresh(true)
		m.RecordStoreReplaced(3, 8)
		m.RecordNovelty(1)
		m.SetNotifications(0)
		m.RecordExport(3)
		m.RecordHTTPRequest("/health", http.MethodGet, 200, 0.01)
		m.RecordSSEConnectionChange(1)
		m.RecordSSEEventSent("update")
		m.RecordNATSPublish("signwatch.novelty.0xabc", "success", 0.01)
	})
}

func TestCollectors(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordEtherscanCall("tokentx", "ok", 0.1)
	m.RecordEtherscanCall("tokentx", "api_error", 0.1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.etherscanCallsTotal.WithLabelValues("tokentx", "ok")))

	m.SetAutoRefresh(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.autoRefreshActive))
	m.SetAutoRefresh(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.autoRefreshActive))

	m.RecordStoreReplaced(3, 8)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.storeRecords))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.storeVolume))

	m.RecordNovelty(2)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.noveltyEventsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.notificationsOpen))
	m.SetNotifications(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.notificationsOpen))

	m.RecordExport(5)
	m.RecordExport(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.exportsTotal))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.exportedRowsTotal))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	h := HTTPMetricsMiddleware(m, "/api/v1/refresh")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/refresh", nil))

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/api/v1/refresh", http.MethodPost, "4xx")))
}

func TestResponseWriterFlush(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	_, err := w.Write([]byte("data: x\n\n"))
	require.NoError(t, err)
	w.Flush()

	assert.True(t, rec.Flushed)
	assert.Same(t, rec, w.Unwrap())
}

func TestStatusCodeToString(t *testing.T) {
	assert.Equal(t, "2xx", statusCodeToString(204))
	assert.Equal(t, "3xx", statusCodeToString(303))
	assert.Equal(t, "4xx", statusCodeToString(409))
	assert.Equal(t, "5xx", statusCodeToString(502))
	assert.Equal(t, "unknown", statusCodeToString(101))
}

func TestTimer(t *testing.T) {
	var got float64
	done := Timer(time.Now().Add(-time.Second), func(d float64) { got = d })
	done()
	assert.GreaterOrEqual(t, got, 1.0)
}
