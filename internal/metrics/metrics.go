// Package metrics exposes Prometheus instrumentation for the trainer.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "yogguru"

// Metrics holds every collector the server records.
type Metrics struct {
	registry *prometheus.Registry

	frames          *prometheus.CounterVec
	feedback        *prometheus.CounterVec
	feedbackLatency *prometheus.HistogramVec
	activeSessions  prometheus.Gauge
	prunedVerdicts  prometheus.Counter
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Angle frames seen by session gates, by outcome.",
		}, []string{"outcome"}),
		feedback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_requests_total",
			Help:      "Completed feedback requests, by outcome.",
		}, []string{"outcome"}),
		feedbackLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feedback_request_duration_seconds",
			Help:      "Feedback request latency, by outcome.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 7, 15, 30},
		}, []string{"outcome"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "trainer_connections",
			Help:      "Open trainer websocket connections.",
		}),
		prunedVerdicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_pruned_total",
			Help:      "Verdict history rows removed by retention.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.frames,
		m.feedback,
		m.feedbackLatency,
		m.activeSessions,
		m.prunedVerdicts,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// FrameObserved counts one frame outcome.
func (m *Metrics) FrameObserved(outcome string) {
	m.frames.WithLabelValues(outcome).Inc()
}

// FeedbackCompleted records one completed feedback request.
func (m *Metrics) FeedbackCompleted(outcome string, d time.Duration) {
	m.feedback.WithLabelValues(outcome).Inc()
	m.feedbackLatency.WithLabelValues(outcome).Observe(d.Seconds())
}

// ConnectionOpened increments the open trainer connection gauge.
func (m *Metrics) ConnectionOpened() { m.activeSessions.Inc() }

// ConnectionClosed decrements the open trainer connection gauge.
func (m *Metrics) ConnectionClosed() { m.activeSessions.Dec() }

// VerdictsPruned counts rows removed by retention.
func (m *Metrics) VerdictsPruned(n int64) {
	if n > 0 {
		m.prunedVerdicts.Add(float64(n))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Hijack supports websocket upgrades through the recorder.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// Middleware records request counts and durations by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.httpRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
