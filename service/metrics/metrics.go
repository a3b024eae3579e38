package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// It is passed explicitly to every component that records metrics; a nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// Etherscan API
	etherscanCallsTotal   *prometheus.CounterVec
	etherscanCallDuration *prometheus.HistogramVec
	recordsPerFetch       prometheus.Histogram

	// Polling
	fetchCyclesTotal  *prometheus.CounterVec
	fetchCycleSeconds prometheus.Histogram
	pollSkippedTotal  *prometheus.CounterVec
	autoRefreshActive prometheus.Gauge

	// Store
	storeRecords       prometheus.Gauge
	storeVolume        prometheus.Gauge
	noveltyEventsTotal prometheus.Counter
	notificationsOpen  prometheus.Gauge

	// Exports
	exportsTotal      prometheus.Counter
	exportedRowsTotal prometheus.Counter

	// HTTP
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections prometheus.Gauge
	sseEventsSent        *prometheus.CounterVec

	// NATS
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		etherscanCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "etherscan_calls_total",
				Help: "Total number of Etherscan API calls by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		etherscanCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "etherscan_call_duration_seconds",
				Help:    "Duration of Etherscan API calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"action"},
		),
		recordsPerFetch: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "etherscan_records_per_fetch",
				Help:    "Number of transfer records returned by a successful fetch",
				Buckets: []float64{0, 1, 10, 25, 50, 100, 250, 1000},
			},
		),

		fetchCyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poll_fetch_cycles_total",
				Help: "Total number of fetch cycles by trigger and outcome",
			},
			[]string{"trigger", "outcome"},
		),
		fetchCycleSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "poll_fetch_cycle_duration_seconds",
				Help:    "Duration of a full fetch cycle including the store update",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		pollSkippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poll_skipped_total",
				Help: "Fetch cycles skipped because another fetch was in flight",
			},
			[]string{"trigger"},
		),
		autoRefreshActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "poll_auto_refresh_enabled",
				Help: "1 when the fixed-interval refresh schedule is running",
			},
		),

		storeRecords: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "store_records",
				Help: "Number of transfer records currently held",
			},
		),
		storeVolume: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "store_total_volume",
				Help: "Sum of derived amounts over the current record set",
			},
		),
		noveltyEventsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "store_novelty_events_total",
				Help: "Number of fetches whose lead transaction differed from the previous one",
			},
		),
		notificationsOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "notifications_pending",
				Help: "Current value of the new-transaction notification counter",
			},
		),

		exportsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "csv_exports_total",
				Help: "Number of CSV exports served",
			},
		),
		exportedRowsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "csv_exported_rows_total",
				Help: "Number of data rows written across all CSV exports",
			},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"event_type"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Etherscan metric helpers

// RecordEtherscanCall records one API call with its outcome ("ok", "api_error",
// "malformed", "transport") and duration.
func (m *Metrics) RecordEtherscanCall(action, outcome string, duration float64) {
	if m == nil {
		return
	}
	m.etherscanCallsTotal.WithLabelValues(action, outcome).Inc()
	m.etherscanCallDuration.WithLabelValues(action).Observe(duration)
}

// RecordRecordsFetched records the size of a successful batch.
func (m *Metrics) RecordRecordsFetched(count int) {
	if m == nil {
		return
	}
	m.recordsPerFetch.Observe(float64(count))
}

// Polling metric helpers

// RecordFetchCycle records a completed fetch cycle.
func (m *Metrics) RecordFetchCycle(trigger, outcome string, duration float64) {
	if m == nil {
		return
	}
	m.fetchCyclesTotal.WithLabelValues(trigger, outcome).Inc()
	m.fetchCycleSeconds.Observe(duration)
}

// RecordPollSkipped records a trigger dropped by the in-flight guard.
func (m *Metrics) RecordPollSkipped(trigger string) {
	if m == nil {
		return
	}
	m.pollSkippedTotal.WithLabelValues(trigger).Inc()
}

// SetAutoRefresh records whether the refresh schedule is running.
func (m *Metrics) SetAutoRefresh(enabled bool) {
	if m == nil {
		return
	}
	if enabled {
		m.autoRefreshActive.Set(1)
		return
	}
	m.autoRefreshActive.Set(0)
}

// Store metric helpers

// RecordStoreReplaced records the size and volume of a freshly applied batch.
func (m *Metrics) RecordStoreReplaced(records int, volume float64) {
	if m == nil {
		return
	}
	m.storeRecords.Set(float64(records))
	m.storeVolume.Set(volume)
}

// RecordNovelty records a novelty event and the resulting notification count.
func (m *Metrics) RecordNovelty(pending int) {
	if m == nil {
		return
	}
	m.noveltyEventsTotal.Inc()
	m.notificationsOpen.Set(float64(pending))
}

// SetNotifications records the notification counter after a clear.
func (m *Metrics) SetNotifications(pending int) {
	if m == nil {
		return
	}
	m.notificationsOpen.Set(float64(pending))
}

// RecordExport records a served CSV export.
func (m *Metrics) RecordExport(rows int) {
	if m == nil {
		return
	}
	m.exportsTotal.Inc()
	m.exportedRowsTotal.Add(float64(rows))
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	if m == nil {
		return
	}
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(delta float64) {
	if m == nil {
		return
	}
	m.sseActiveConnections.Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(eventType string) {
	if m == nil {
		return
	}
	m.sseEventsSent.WithLabelValues(eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	if m == nil {
		return
	}
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
