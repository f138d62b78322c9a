// Package observability wires the service's Prometheus instruments, in the
// same promauto/promhttp style the teacher uses for its realtime voice
// metrics, generalized to the transcription job engine's lifecycle.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	JobsEnqueued      prometheus.Counter
	JobsFinished      *prometheus.CounterVec
	ActiveWorkers     prometheus.Gauge
	QueueDepth        prometheus.Gauge
	DecodeLatency     prometheus.Histogram
	SegmentsEmitted   prometheus.Counter
	WaiterConnections prometheus.Gauge
	WSMessages        *prometheus.CounterVec
	WSWriteErrors     *prometheus.CounterVec
	StorageErrors     *prometheus.CounterVec
}

// NewMetrics constructs and registers every instrument under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		JobsEnqueued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_enqueued_total",
			Help:      "Transcription jobs accepted into the queue.",
		}),
		JobsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Transcription jobs that reached a terminal status, by status.",
		}, []string{"status"}),
		ActiveWorkers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_workers",
			Help:      "Number of worker goroutines currently decoding a job.",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of jobs waiting in the FIFO queue.",
		}),
		DecodeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decode_latency_ms",
			Help:      "Wall-clock time spent in one job's decode, in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000, 120000},
		}),
		SegmentsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_emitted_total",
			Help:      "Segments appended to any job across the service lifetime.",
		}),
		WaiterConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "waiter_connections",
			Help:      "Number of open blocking /wait or websocket progress connections.",
		}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket progress-channel messages by direction and type.",
		}, []string{"direction", "type"}),
		WSWriteErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_write_errors_total",
			Help:      "WebSocket write errors by reason.",
		}, []string{"reason"}),
		StorageErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Document store errors by operation.",
		}, []string{"operation"}),
	}
}

func (m *Metrics) ObserveJobEnqueued() {
	if m == nil || m.JobsEnqueued == nil {
		return
	}
	m.JobsEnqueued.Inc()
}

func (m *Metrics) ObserveJobFinished(status string) {
	if m == nil || m.JobsFinished == nil {
		return
	}
	m.JobsFinished.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveDecodeLatency(d time.Duration) {
	if m == nil || m.DecodeLatency == nil {
		return
	}
	m.DecodeLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveSegmentEmitted() {
	if m == nil || m.SegmentsEmitted == nil {
		return
	}
	m.SegmentsEmitted.Inc()
}

func (m *Metrics) SetActiveWorkers(n int) {
	if m == nil || m.ActiveWorkers == nil {
		return
	}
	m.ActiveWorkers.Set(float64(n))
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil || m.QueueDepth == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil || m.WSMessages == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) ObserveWSWriteError(reason string) {
	if m == nil || m.WSWriteErrors == nil {
		return
	}
	m.WSWriteErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveStorageError(operation string) {
	if m == nil || m.StorageErrors == nil {
		return
	}
	m.StorageErrors.WithLabelValues(operation).Inc()
}

// MetricsHandler exposes the default Prometheus registry over HTTP.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
