// Package metrics exposes Prometheus collectors for the upload service on a
// self-contained registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "uploadsvc"

// Upload lifecycle events.
const (
	EventInitiated        = "initiated"
	EventInitiationFailed = "initiation_failed"
	EventCompleted        = "completed"
	EventFailed           = "failed"
	EventAborted          = "aborted"
	EventDeleted          = "deleted"
)

// UploadObserver receives upload service events. *Metrics implements it.
type UploadObserver interface {
	UploadEvent(event string)
	PartsPlanned(n int)
	ProviderCall(op string, err error, dur time.Duration)
}

// Metrics holds the registry and every collector of the service.
type Metrics struct {
	reg *prometheus.Registry

	uploads         *prometheus.CounterVec
	parts           prometheus.Histogram
	providerOps     *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// New creates a Metrics instance with a fresh registry and registers collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	uploads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "uploads",
		Name:      "events_total",
		Help:      "Upload session lifecycle events.",
	}, []string{"event"})
	parts := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "uploads",
		Name:      "planned_parts",
		Help:      "Number of parts planned per initiated upload.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})
	providerOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "ops_total",
		Help:      "Object store calls by operation and result.",
	}, []string{"op", "result"}) // result = "ok" | "error"
	providerLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "op_duration_seconds",
		Help:      "Object store call durations in seconds, retries included.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests processed, partitioned by route, method and status code.",
	}, []string{"route", "method", "code"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Histogram of latencies for HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	reg.MustRegister(uploads, parts, providerOps, providerLatency, requests, latency)

	return &Metrics{
		reg:             reg,
		uploads:         uploads,
		parts:           parts,
		providerOps:     providerOps,
		providerLatency: providerLatency,
		requests:        requests,
		latency:         latency,
	}
}

func (m *Metrics) UploadEvent(event string) {
	m.uploads.WithLabelValues(event).Inc()
}

func (m *Metrics) PartsPlanned(n int) {
	m.parts.Observe(float64(n))
}

// ProviderCall records one object store operation. dur covers all attempts.
func (m *Metrics) ProviderCall(op string, err error, dur time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.providerOps.WithLabelValues(op, result).Inc()
	m.providerLatency.WithLabelValues(op).Observe(dur.Seconds())
}

// ObserveHTTP records a served request. route must be the route template,
// not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(route, method string, code int, dur time.Duration) {
	m.requests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.latency.WithLabelValues(route, method).Observe(dur.Seconds())
}

// Handler returns an http.Handler that serves Prometheus metrics using the internal registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry for advanced usage.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

type nopObserver struct{}

// NewNopObserver returns an UploadObserver that records nothing.
func NewNopObserver() UploadObserver { return nopObserver{} }

func (nopObserver) UploadEvent(string)                        {}
func (nopObserver) PartsPlanned(int)                          {}
func (nopObserver) ProviderCall(string, error, time.Duration) {}
