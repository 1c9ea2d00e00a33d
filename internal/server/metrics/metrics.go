// Package metrics exposes Prometheus counters for the auth core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry. Recording methods are no-ops on a nil
// *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	logins          *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	reuseDetected   prometheus.Counter
	revoked         *prometheus.CounterVec
	rateLimited     prometheus.Counter
	requestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_auth_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_auth_refresh_total",
			Help: "Refresh token rotations by result (rotated or failure kind).",
		}, []string{"result"}),
		reuseDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_auth_refresh_reuse_detected_total",
			Help: "Refresh tokens presented after rotation.",
		}),
		revoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_auth_refresh_tokens_revoked_total",
			Help: "Refresh token records revoked by reason.",
		}, []string{"reason"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_auth_rate_limited_total",
			Help: "Logins refused by the throttle.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "HTTP request latency by route, method and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}

	reg.MustRegister(
		m.logins, m.refreshes, m.reuseDetected, m.revoked, m.rateLimited, m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RegisterAuditDropped exposes the audit dispatcher's drop counter.
func (m *Metrics) RegisterAuditDropped(dropped func() uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "storefront_audit_dropped_total",
		Help: "Audit events dropped because the dispatcher buffer was full.",
	}, func() float64 { return float64(dropped()) }))
}

func (m *Metrics) Login(success bool) {
	if m == nil {
		return
	}
	if success {
		m.logins.WithLabelValues("success").Inc()
		return
	}
	m.logins.WithLabelValues("failure").Inc()
}

// Refresh counts a rotation outcome; result is "rotated" or a failure kind.
func (m *Metrics) Refresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) ReuseDetected() {
	if m == nil {
		return
	}
	m.reuseDetected.Inc()
}

func (m *Metrics) Revoked(reason string, n int64) {
	if m == nil {
		return
	}
	if n > 0 {
		m.revoked.WithLabelValues(reason).Add(float64(n))
	}
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *Metrics) ObserveRequest(route, method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(route, method, status).Observe(d.Seconds())
}
