package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Chain RPC metrics
	chainCallsTotal   *prometheus.CounterVec
	chainCallDuration *prometheus.HistogramVec

	// Workflow metrics
	workflowRunsTotal    *prometheus.CounterVec
	workflowRunDuration  *prometheus.HistogramVec
	workflowPhaseChanges *prometheus.CounterVec

	// Synchronizer metrics
	refreshesTotal  *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec
	snapshotSize    prometheus.Gauge

	// Watcher metrics
	contractEventsTotal *prometheus.CounterVec

	// HTTP metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections prometheus.Gauge
	sseEventsSent        *prometheus.CounterVec

	// NATS metrics
	natsMessagesPublished *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		chainCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chain_rpc_calls_total",
				Help: "Total number of contract RPC calls by method and status",
			},
			[]string{"method", "status"},
		),
		chainCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chain_rpc_call_duration_seconds",
				Help:    "Duration of contract RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method"},
		),

		workflowRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_runs_total",
				Help: "Total number of transaction workflow runs by intent and outcome",
			},
			[]string{"intent", "outcome"},
		),
		workflowRunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "workflow_run_duration_seconds",
				Help:    "End-to-end duration of transaction workflows in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"intent"},
		),
		workflowPhaseChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_phase_transitions_total",
				Help: "Total number of workflow phase transitions",
			},
			[]string{"intent", "phase"},
		),

		refreshesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "project_refreshes_total",
				Help: "Total number of project snapshot refreshes by status",
			},
			[]string{"status"},
		),
		refreshDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "project_refresh_duration_seconds",
				Help:    "Duration of project snapshot refreshes in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{},
		),
		snapshotSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "project_snapshot_size",
				Help: "Number of projects in the current snapshot",
			},
		),

		contractEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contract_events_total",
				Help: "Total number of contract log events seen by the watcher",
			},
			[]string{"event"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"method", "path"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
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
				Help: "Total number of SSE events sent to clients",
			},
			[]string{"event"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of messages published to NATS",
			},
			[]string{"subject", "status"},
		),
	}
}

// RecordChainCall records a contract RPC call with its duration in seconds.
func (m *Metrics) RecordChainCall(method, status string, duration float64) {
	m.chainCallsTotal.WithLabelValues(method, status).Inc()
	m.chainCallDuration.WithLabelValues(method).Observe(duration)
}

// RecordWorkflowRun records a completed workflow run.
func (m *Metrics) RecordWorkflowRun(intent, outcome string, duration float64) {
	m.workflowRunsTotal.WithLabelValues(intent, outcome).Inc()
	m.workflowRunDuration.WithLabelValues(intent).Observe(duration)
}

// RecordWorkflowPhase records a workflow phase transition.
func (m *Metrics) RecordWorkflowPhase(intent, phase string) {
	m.workflowPhaseChanges.WithLabelValues(intent, phase).Inc()
}

// RecordRefresh records a snapshot refresh attempt.
func (m *Metrics) RecordRefresh(status string, duration float64, size int) {
	m.refreshesTotal.WithLabelValues(status).Inc()
	m.refreshDuration.WithLabelValues().Observe(duration)
	if status == "success" {
		m.snapshotSize.Set(float64(size))
	}
}

// RecordContractEvent records a decoded contract log event.
func (m *Metrics) RecordContractEvent(event string) {
	m.contractEventsTotal.WithLabelValues(event).Inc()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration float64) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// SSEConnectionOpened increments the active SSE connection gauge.
func (m *Metrics) SSEConnectionOpened() {
	m.sseActiveConnections.Inc()
}

// SSEConnectionClosed decrements the active SSE connection gauge.
func (m *Metrics) SSEConnectionClosed() {
	m.sseActiveConnections.Dec()
}

// RecordSSEEvent records an SSE event sent to a client.
func (m *Metrics) RecordSSEEvent(event string) {
	m.sseEventsSent.WithLabelValues(event).Inc()
}

// RecordNATSPublish records a NATS publish attempt.
func (m *Metrics) RecordNATSPublish(subject, status string) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
}
