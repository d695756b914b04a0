package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/daanzu/speech-training-recorder/internal/audio"
)

// Metrics contains all Prometheus metrics for the recorder
type Metrics struct {
	Registry *prometheus.Registry
	factory  promauto.Factory

	// Capture metrics
	DeviceErrors prometheus.Counter

	// Recording metrics
	RecordingsStarted prometheus.Counter
	RecordingsSaved   prometheus.Counter
	RecordingsDeleted prometheus.Counter
	PersistFailures   prometheus.Counter
	RecordingDuration prometheus.Histogram
	RecordingSize     prometheus.Histogram
	PersistDuration   prometheus.Histogram

	// Script metrics
	ScriptSegments prometheus.Gauge
	ScriptPosition prometheus.Gauge

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics on a fresh registry, so several instances
// can coexist (one per process in practice, one per test).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		factory:  f,

		DeviceErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "recorder_device_errors_total",
			Help: "Total number of recordings aborted by a capture fault",
		}),

		RecordingsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "recorder_recordings_started_total",
			Help: "Total number of recordings started",
		}),
		RecordingsSaved: f.NewCounter(prometheus.CounterOpts{
			Name: "recorder_recordings_saved_total",
			Help: "Total number of recordings persisted with metadata",
		}),
		RecordingsDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "recorder_recordings_deleted_total",
			Help: "Total number of recordings deleted by re-recording or explicit delete",
		}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "recorder_persist_failures_total",
			Help: "Total number of failed persist attempts",
		}),
		RecordingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "recorder_recording_duration_seconds",
			Help:    "Audio duration of persisted recordings",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~1 minute
		}),
		RecordingSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "recorder_recording_size_bytes",
			Help:    "Size of persisted recording files",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 10), // 16KB to ~8MB
		}),
		PersistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "recorder_persist_duration_seconds",
			Help:    "Time spent encoding and writing a recording",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~1s
		}),

		ScriptSegments: f.NewGauge(prometheus.GaugeOpts{
			Name: "recorder_script_segments",
			Help: "Number of prompt segments in the current script",
		}),
		ScriptPosition: f.NewGauge(prometheus.GaugeOpts{
			Name: "recorder_script_position",
			Help: "Index of the currently displayed prompt segment",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recorder_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RegisterBuffer exposes the capture buffer counters. stats is called on
// every scrape and must be safe for concurrent use.
func (m *Metrics) RegisterBuffer(stats func() audio.BufferStats) {
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "recorder_buffer_queued_chunks",
		Help: "Number of chunks waiting in the capture buffer",
	}, func() float64 { return float64(stats().Queued) })
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "recorder_chunks_captured_total",
		Help: "Total number of chunks pushed by the capture callback",
	}, func() float64 { return float64(stats().TotalChunks) })
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "recorder_chunks_flushed_total",
		Help: "Total number of stray chunks discarded before a recording",
	}, func() float64 { return float64(stats().FlushedChunks) })
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "recorder_chunks_drained_total",
		Help: "Total number of chunks drained into recordings",
	}, func() float64 { return float64(stats().DrainedChunks) })
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "recorder_chunks_dropped_total",
		Help: "Total number of trailing chunks trimmed from recordings",
	}, func() float64 { return float64(stats().DroppedChunks) })
}

// RecordStarted increments the started recordings counter
func (m *Metrics) RecordStarted() {
	m.RecordingsStarted.Inc()
}

// RecordDeviceError increments the device error counter
func (m *Metrics) RecordDeviceError() {
	m.DeviceErrors.Inc()
}

// RecordSaved records a persisted recording
func (m *Metrics) RecordSaved(durationSeconds float64, sizeBytes int, persistSeconds float64) {
	m.RecordingsSaved.Inc()
	m.RecordingDuration.Observe(durationSeconds)
	m.RecordingSize.Observe(float64(sizeBytes))
	m.PersistDuration.Observe(persistSeconds)
}

// RecordPersistFailure increments the persist failure counter
func (m *Metrics) RecordPersistFailure() {
	m.PersistFailures.Inc()
}

// RecordDeleted increments the deleted recordings counter
func (m *Metrics) RecordDeleted() {
	m.RecordingsDeleted.Inc()
}

// SetScript sets the script size and the current position in it
func (m *Metrics) SetScript(segments, position int) {
	m.ScriptSegments.Set(float64(segments))
	m.ScriptPosition.Set(float64(position))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
