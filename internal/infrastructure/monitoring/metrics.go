package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GriffinCanCode/AgentOS/queuedev/internal/device"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Device metrics
	Opens           *prometheus.CounterVec
	Closes          *prometheus.CounterVec
	HandlesOpen     prometheus.Gauge
	PrivateQueues   prometheus.Gauge
	SharedQueueLen  prometheus.Gauge
	BytesWritten    prometheus.Counter
	BytesRead       prometheus.Counter
	BytesDiscarded  prometheus.Counter
	OperationErrors *prometheus.CounterVec
	ModeChanges     *prometheus.CounterVec

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current metric values for the stats endpoint
type Snapshot struct {
	TotalRequests int64 `json:"total_requests"`
	TotalErrors   int64 `json:"total_errors"`
	Opens         int64 `json:"opens"`
	Closes        int64 `json:"closes"`
	BytesWritten  int64 `json:"bytes_written"`
	BytesRead     int64 `json:"bytes_read"`
}

// NewMetrics creates a metrics collector on its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queuedev_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "queuedev_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),

		Opens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queuedev_opens_total",
				Help: "Open attempts by mode and result",
			},
			[]string{"mode", "result"},
		),
		Closes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queuedev_closes_total",
				Help: "Handles closed by mode",
			},
			[]string{"mode"},
		),
		HandlesOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "queuedev_handles_open",
				Help: "Number of open handles",
			},
		),
		PrivateQueues: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "queuedev_private_queues",
				Help: "Number of live per-handle queue instances",
			},
		),
		SharedQueueLen: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "queuedev_shared_queue_bytes",
				Help: "Bytes currently held by the shared queue",
			},
		),
		BytesWritten: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "queuedev_bytes_written_total",
				Help: "Bytes appended to any queue",
			},
		),
		BytesRead: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "queuedev_bytes_read_total",
				Help: "Bytes removed from any queue by reads",
			},
		),
		BytesDiscarded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "queuedev_bytes_discarded_total",
				Help: "Bytes dropped by clear-on-close",
			},
		),
		OperationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queuedev_operation_errors_total",
				Help: "Failed device operations by operation and error kind",
			},
			[]string{"op", "kind"},
		),
		ModeChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queuedev_mode_changes_total",
				Help: "Successful mode control calls by target mode",
			},
			[]string{"mode"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "queuedev_uptime_seconds",
			Help: "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus exposition handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordOpen records an open attempt
func (m *Metrics) RecordOpen(mode device.Mode, err error) {
	m.Opens.WithLabelValues(mode.String(), device.Code(err)).Inc()
	if err != nil {
		m.OperationErrors.WithLabelValues("open", device.Code(err)).Inc()
		return
	}
	m.HandlesOpen.Inc()
	if mode == device.ModePerHandle {
		m.PrivateQueues.Inc()
	}

	m.mu.Lock()
	m.snapshot.Opens++
	m.mu.Unlock()
}

// RecordClose records a handle close and the bytes its clear dropped
func (m *Metrics) RecordClose(mode device.Mode, private bool, discarded int) {
	m.Closes.WithLabelValues(mode.String()).Inc()
	m.HandlesOpen.Dec()
	if private {
		m.PrivateQueues.Dec()
	}
	m.BytesDiscarded.Add(float64(discarded))

	m.mu.Lock()
	m.snapshot.Closes++
	m.mu.Unlock()
}

// RecordWrite records a write; n counts committed bytes even on error
func (m *Metrics) RecordWrite(n int, err error) {
	m.BytesWritten.Add(float64(n))
	if err != nil {
		m.OperationErrors.WithLabelValues("write", device.Code(err)).Inc()
	}

	m.mu.Lock()
	m.snapshot.BytesWritten += int64(n)
	m.mu.Unlock()
}

// RecordRead records a read; n counts removed bytes even on error
func (m *Metrics) RecordRead(n int, err error) {
	m.BytesRead.Add(float64(n))
	if err != nil {
		m.OperationErrors.WithLabelValues("read", device.Code(err)).Inc()
	}

	m.mu.Lock()
	m.snapshot.BytesRead += int64(n)
	m.mu.Unlock()
}

// RecordControl records a mode control call
func (m *Metrics) RecordControl(mode device.Mode, err error) {
	if err != nil {
		m.OperationErrors.WithLabelValues("control", device.Code(err)).Inc()
		return
	}
	m.ModeChanges.WithLabelValues(mode.String()).Inc()
}

// SetSharedQueueLen sets the shared queue length gauge
func (m *Metrics) SetSharedQueueLen(n int) {
	m.SharedQueueLen.Set(float64(n))
}

// Snapshot returns a copy of the tracked totals
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Uptime returns time since the collector was created
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}
