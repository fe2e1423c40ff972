package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nbpress/internal/publish"
)

const namespace = "nbpress"

// Recorder exports publish activity as Prometheus metrics. Each Recorder owns
// its registry so tests and embedded servers do not share global state.
type Recorder struct {
	registry *prometheus.Registry

	publishes    *prometheus.CounterVec
	chunkWrites  *prometheus.CounterVec
	chunkCount   *prometheus.HistogramVec
	payloadBytes *prometheus.HistogramVec
	duration     *prometheus.HistogramVec
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Finished publishes by strategy and overall result.",
		}, []string{"strategy", "overall"}),
		chunkWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_writes_total",
			Help:      "Chunk writes by strategy and response code (0 for transport errors).",
		}, []string{"strategy", "code"}),
		chunkCount: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_chunks",
			Help:      "Number of chunks per publish.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		}, []string{"strategy"}),
		payloadBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_payload_bytes",
			Help:      "Size of the encoded payload per publish.",
			Buckets:   prometheus.ExponentialBuckets(16*1024, 4, 7),
		}, []string{"strategy"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_duration_seconds",
			Help:      "Wall time of a publish including stagger delays.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"strategy"}),
	}
	r.registry.MustRegister(
		r.publishes,
		r.chunkWrites,
		r.chunkCount,
		r.payloadBytes,
		r.duration,
		collectors.NewGoCollector(),
	)
	return r
}

// ObservePublish implements publish.Recorder.
func (r *Recorder) ObservePublish(outcome publish.Outcome, chunks int, payloadBytes int, elapsed time.Duration) {
	strategy := outcome.Strategy
	r.publishes.WithLabelValues(strategy, outcome.Overall.String()).Inc()
	for _, c := range outcome.Chunks {
		r.chunkWrites.WithLabelValues(strategy, strconv.Itoa(c.Code)).Inc()
	}
	r.chunkCount.WithLabelValues(strategy).Observe(float64(chunks))
	r.payloadBytes.WithLabelValues(strategy).Observe(float64(payloadBytes))
	r.duration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
