package zetro

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments an App updates while serving.
// Attach one with App.WithMetrics; a nil *Metrics records nothing.
type Metrics struct {
	operations     *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	decodeFailures *prometheus.CounterVec
	batchSize      prometheus.Histogram
	inflight       prometheus.Gauge
}

// NewMetrics creates the instruments and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zetro_operations_total",
			Help: "Operations served, by route, kind and result code.",
		}, []string{"route", "kind", "code"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zetro_operation_duration_seconds",
			Help:    "Handler latency per operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "kind"}),
		decodeFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zetro_decode_failures_total",
			Help: "Payloads rejected by the positional decoder, by failure kind.",
		}, []string{"kind"}),
		batchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "zetro_batch_operations",
			Help:    "Operations per request envelope.",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
		}),
		inflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "zetro_inflight_requests",
			Help: "HTTP requests currently being served.",
		}),
	}
}

func (m *Metrics) observeOp(route string, kind RouteKind, code ErrorCode, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "ok"
	if code != "" {
		label = string(code)
	}
	m.operations.WithLabelValues(route, kind.String(), label).Inc()
	m.duration.WithLabelValues(route, kind.String()).Observe(elapsed.Seconds())
}

func (m *Metrics) observeDecodeFailure(k DecodeKind) {
	if m == nil {
		return
	}
	m.decodeFailures.WithLabelValues(strings.ReplaceAll(k.String(), " ", "_")).Inc()
}

func (m *Metrics) observeBatch(n int) {
	if m == nil {
		return
	}
	m.batchSize.Observe(float64(n))
}

func (m *Metrics) incInflight() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

func (m *Metrics) decInflight() {
	if m == nil {
		return
	}
	m.inflight.Dec()
}
