// Package metrics holds the Prometheus collectors for dap-viewer. They are
// registered with the default registry and served by Handler when the
// configuration sets metricsAddr.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ctagard/dap-viewer/internal/errors"
)

// OutcomeOK labels a call that returned no error. Failures are labelled
// with their lowercased error code.
const OutcomeOK = "ok"

var (
	// queries counts viewable queries by kind and outcome
	queries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dapviewer_queries_total",
			Help: "Total viewable queries by kind (classify, describe, serialize) and outcome",
		},
		[]string{"query", "outcome"},
	)

	// queryDuration tracks query latency including installation
	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dapviewer_query_duration_seconds",
			Help:    "Viewable query latency by kind",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"query"},
	)

	// installs counts helper installations by outcome
	installs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dapviewer_installs_total",
			Help: "Total helper installations by outcome",
		},
		[]string{"outcome"},
	)

	// sessionsActive tracks the number of open debug sessions
	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dapviewer_sessions_active",
			Help: "Number of currently open debug sessions",
		},
	)
)

// Outcome maps err to a label value: "ok" or the lowercased DebugError code.
// Errors without a code count as "unknown_error".
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	return strings.ToLower(string(errors.FromError(err).Code))
}

// ObserveQuery records one viewable query.
func ObserveQuery(query string, err error, elapsed time.Duration) {
	queries.WithLabelValues(query, Outcome(err)).Inc()
	queryDuration.WithLabelValues(query).Observe(elapsed.Seconds())
}

// RecordInstall records one helper installation attempt.
func RecordInstall(err error) {
	installs.WithLabelValues(Outcome(err)).Inc()
}

// SetSessionsActive sets the open session gauge.
func SetSessionsActive(n int) {
	sessionsActive.Set(float64(n))
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
