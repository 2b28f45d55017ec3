// Package metrics declares the Prometheus collectors of the API server.
// They live in the default registry and are served at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// RequestsTotal counts HTTP requests by method, route and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meugerente_http_requests_total",
			Help: "HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meugerente_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// AuthAttemptsTotal counts register/login/refresh/logout outcomes.
	AuthAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meugerente_auth_attempts_total",
			Help: "Authentication attempts",
		},
		[]string{"operation", "outcome"},
	)

	AuditWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meugerente_audit_writes_total",
			Help: "Audit log writes",
		},
		[]string{"entity", "action", "outcome"},
	)

	AuditArchivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "meugerente_audit_archived_entries_total",
			Help: "Audit entries exported to object storage",
		},
	)

	LockoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "meugerente_login_lockouts_total",
			Help: "Identifiers locked after repeated login failures",
		},
	)

	RealtimeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meugerente_realtime_connections",
			Help: "Open live event streams",
		},
	)

	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meugerente_jobs_total",
			Help: "Background jobs by type and outcome",
		},
		[]string{"type", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		AuthAttemptsTotal,
		AuditWritesTotal,
		AuditArchivedTotal,
		LockoutsTotal,
		RealtimeConnections,
		JobsTotal,
	)
}

// StatusClass turns 404 into "4xx".
func StatusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// Outcome labels an error as "ok" or "error".
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
