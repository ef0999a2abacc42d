// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "splitsend"

// Pipeline results used as the "result" label.
const (
	ResultCompleted = "completed"
	ResultFailed    = "failed"
	ResultCancelled = "cancelled"
	ResultBusy      = "busy"
)

// Upload attempt results.
const (
	AttemptOK          = "ok"
	AttemptRetry       = "retry"
	AttemptRateLimited = "rate_limited"
	AttemptFatal       = "fatal"
)

// AdmissionStats is read on every scrape.
type AdmissionStats interface {
	Outstanding() int
	ActiveActors() int
	Capacity() int
}

// Metrics holds all Prometheus metrics. A nil *Metrics records nothing.
type Metrics struct {
	PipelinesActive prometheus.Gauge
	PipelinesTotal  *prometheus.CounterVec
	UploadAttempts  *prometheus.CounterVec
	UploadBytes     prometheus.Counter
	Chunks          prometheus.Counter
	StageDuration   *prometheus.HistogramVec

	registry *prometheus.Registry
	factory  promauto.Factory
}

// New registers the collectors on reg, or on a fresh registry when reg is nil.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		factory:  f,

		PipelinesActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipelines_active",
			Help:      "Number of pipelines currently running",
		}),
		PipelinesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipelines_total",
			Help:      "Finished pipelines by result",
		}, []string{"result"}),
		UploadAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_attempts_total",
			Help:      "Chunk upload attempts by result",
		}, []string{"result"}),
		UploadBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_bytes_total",
			Help:      "Bytes of chunks delivered",
		}),
		Chunks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Chunks produced by the splitter",
		}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent per pipeline stage",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
		}, []string{"stage"}),
	}
}

// WatchAdmission exports the admission controller's ticket and actor counts.
func (m *Metrics) WatchAdmission(a AdmissionStats) {
	if m == nil || a == nil {
		return
	}
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tickets_outstanding",
		Help:      "Global pipeline tickets currently held",
	}, func() float64 { return float64(a.Outstanding()) })
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tickets_capacity",
		Help:      "Maximum concurrent pipelines",
	}, func() float64 { return float64(a.Capacity()) })
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "actors_active",
		Help:      "Actors with a pipeline in progress",
	}, func() float64 { return float64(a.ActiveActors()) })
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) PipelineStarted() {
	if m == nil {
		return
	}
	m.PipelinesActive.Inc()
}

func (m *Metrics) PipelineFinished(result string) {
	if m == nil {
		return
	}
	m.PipelinesActive.Dec()
	m.PipelinesTotal.WithLabelValues(result).Inc()
}

// Rejected counts a request that never started, e.g. a busy actor.
func (m *Metrics) Rejected(result string) {
	if m == nil {
		return
	}
	m.PipelinesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) UploadAttempt(result string) {
	if m == nil {
		return
	}
	m.UploadAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) Uploaded(bytes int64) {
	if m == nil || bytes <= 0 {
		return
	}
	m.UploadBytes.Add(float64(bytes))
}

func (m *Metrics) ChunksProduced(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Chunks.Add(float64(n))
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
