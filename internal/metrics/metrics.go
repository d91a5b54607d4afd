// Package metrics exposes Prometheus metrics for the admission gateway.
// A subscriber on the event bus feeds them; Serve publishes the standard
// /metrics endpoint.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	eventbus "github.com/classhub/gqlgate/internal/eventbus"
	events "github.com/classhub/gqlgate/internal/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every gateway metric.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	AdmissionTotal   *prometheus.CounterVec
	QueryComplexity  prometheus.Histogram
	QueryDepth       prometheus.Histogram
	UpstreamDuration prometheus.Histogram
	UpstreamErrors   prometheus.Counter
}

// New creates the metric set.
func New() *Metrics {
	return &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gqlgate",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests handled, by method and status",
			},
			[]string{"method", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gqlgate",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "End-to-end request duration",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		AdmissionTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gqlgate",
				Subsystem: "admission",
				Name:      "decisions_total",
				Help:      "Admission decisions, by outcome and rejection code",
			},
			[]string{"outcome", "code"},
		),
		QueryComplexity: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "gqlgate",
				Subsystem: "admission",
				Name:      "query_complexity",
				Help:      "Computed complexity per evaluated operation",
				Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
			},
		),
		QueryDepth: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "gqlgate",
				Subsystem: "admission",
				Name:      "query_depth",
				Help:      "Computed nesting depth per evaluated operation",
				Buckets:   []float64{1, 2, 3, 4, 5, 7, 10, 15, 20},
			},
		),
		UpstreamDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "gqlgate",
				Subsystem: "upstream",
				Name:      "duration_seconds",
				Help:      "Upstream executor round-trip duration",
				Buckets:   prometheus.DefBuckets,
			},
		),
		UpstreamErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gqlgate",
				Subsystem: "upstream",
				Name:      "errors_total",
				Help:      "Failed upstream round trips",
			},
		),
	}
}

// Register adds all metrics to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.RequestsTotal, m.RequestDuration, m.AdmissionTotal,
		m.QueryComplexity, m.QueryDepth, m.UpstreamDuration, m.UpstreamErrors,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe attaches the metric set to the global event bus.
func (m *Metrics) Subscribe() {
	eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
		m.RequestsTotal.WithLabelValues(e.Request.Method, strconv.Itoa(e.Status)).Inc()
		m.RequestDuration.WithLabelValues(e.Request.Method).Observe(e.Duration.Seconds())
	})

	eventbus.Subscribe(func(ctx context.Context, e events.AdmissionEvaluated) {
		outcome := "allowed"
		if !e.Allowed {
			outcome = "rejected"
		}
		m.AdmissionTotal.WithLabelValues(outcome, e.RejectionCode).Inc()
		m.QueryComplexity.Observe(e.Complexity)
		m.QueryDepth.Observe(float64(e.Depth))
	})

	eventbus.Subscribe(func(ctx context.Context, e events.UpstreamFinish) {
		m.UpstreamDuration.Observe(e.Duration.Seconds())
		if e.Err != nil {
			m.UpstreamErrors.Inc()
		}
	})
}

// Serve runs a Prometheus endpoint on addr until ctx is done. It returns
// the shutdown error, or the listen error if the server never started.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
