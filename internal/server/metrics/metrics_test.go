package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistered(t *testing.T) {
	RequestsTotal.WithLabelValues("GET", "/ping", "2xx").Inc()
	RequestDuration.WithLabelValues("GET", "/ping").Observe(0.01)
	AuthAttemptsTotal.WithLabelValues("login", "ok").Inc()
	AuditWritesTotal.WithLabelValues("AUTH", "LOGIN", "ok").Inc()
	JobsTotal.WithLabelValues("auth:password_reset", "ok").Inc()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	expected := map[string]bool{
		"meugerente_http_requests_total":           false,
		"meugerente_http_request_duration_seconds": false,
		"meugerente_auth_attempts_total":           false,
		"meugerente_audit_writes_total":            false,
		"meugerente_audit_archived_entries_total":  false,
		"meugerente_login_lockouts_total":          false,
		"meugerente_realtime_connections":          false,
		"meugerente_jobs_total":                    false,
	}
	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}
	for name, found := range expected {
		assert.True(t, found, "metric %q not registered", name)
	}
}

func TestCounterIncrements(t *testing.T) {
	before := testutil.ToFloat64(AuthAttemptsTotal.WithLabelValues("register", "error"))
	AuthAttemptsTotal.WithLabelValues("register", "error").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(AuthAttemptsTotal.WithLabelValues("register", "error")))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", StatusClass(200))
	assert.Equal(t, "2xx", StatusClass(204))
	assert.Equal(t, "3xx", StatusClass(302))
	assert.Equal(t, "4xx", StatusClass(401))
	assert.Equal(t, "5xx", StatusClass(503))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "error", Outcome(errors.New("x")))
}
