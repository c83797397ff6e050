package upload

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer captures telemetry for the upload pipeline.
type Observer interface {
	ObserveReplication(backend string, duration time.Duration, err error)
	ObserveUpload(kind string, size int64)
}

type nopObserver struct{}

func (nopObserver) ObserveReplication(string, time.Duration, error) {}
func (nopObserver) ObserveUpload(string, int64)                     {}

// PrometheusObserver exports upload metrics to Prometheus.
type PrometheusObserver struct {
	uploads            *prometheus.CounterVec
	uploadedBytes      prometheus.Counter
	replicationLatency *prometheus.HistogramVec
	replicationErrors  *prometheus.CounterVec
}

// NewPrometheusObserver registers the upload metrics on reg.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &PrometheusObserver{
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dualstore",
			Subsystem: "upload",
			Name:      "requests_total",
			Help:      "Upload requests by outcome.",
		}, []string{"outcome"}),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dualstore",
			Subsystem: "upload",
			Name:      "bytes_total",
			Help:      "Bytes of successfully replicated uploads.",
		}),
		replicationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dualstore",
			Subsystem: "replication",
			Name:      "duration_seconds",
			Help:      "Latency of backend put operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),
		replicationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dualstore",
			Subsystem: "replication",
			Name:      "errors_total",
			Help:      "Failed backend put operations.",
		}, []string{"backend"}),
	}

	collectors := []prometheus.Collector{o.uploads, o.uploadedBytes, o.replicationLatency, o.replicationErrors}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register upload metric: %w", err)
		}
	}
	return o, nil
}

// ObserveReplication records one backend put.
func (o *PrometheusObserver) ObserveReplication(backend string, duration time.Duration, err error) {
	o.replicationLatency.WithLabelValues(backend).Observe(duration.Seconds())
	if err != nil {
		o.replicationErrors.WithLabelValues(backend).Inc()
	}
}

// ObserveUpload records one completed upload request. An empty kind means
// success.
func (o *PrometheusObserver) ObserveUpload(kind string, size int64) {
	if kind == "" {
		o.uploads.WithLabelValues("succeeded").Inc()
		o.uploadedBytes.Add(float64(size))
		return
	}
	o.uploads.WithLabelValues(kind).Inc()
}
