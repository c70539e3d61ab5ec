package wmi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Connector Metrics
var (
	// ConnectAttemptsTotal tracks connect calls by outcome and failure kind
	ConnectAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wmi_connect_attempts_total",
			Help: "Total WMI connect attempts by outcome and error kind",
		},
		[]string{"outcome", "kind"},
	)

	// ConnectDuration tracks how long a full connect sequence takes
	ConnectDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wmi_connect_duration_seconds",
			Help:    "WMI connect duration in seconds by outcome",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"outcome"},
	)

	// SessionsActive tracks sessions currently held by connectors
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wmi_sessions_active",
			Help: "Number of remote sessions currently owned by connectors",
		},
	)

	// DisconnectsTotal tracks session teardown by outcome
	DisconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wmi_disconnects_total",
			Help: "Total WMI session teardowns by outcome",
		},
		[]string{"outcome"},
	)
)

func observeConnect(err error, seconds float64) {
	if err == nil {
		ConnectAttemptsTotal.WithLabelValues(outcomeSuccess, "").Inc()
		ConnectDuration.WithLabelValues(outcomeSuccess).Observe(seconds)
		return
	}

	kind := "unknown"
	if wmiErr, ok := err.(*Error); ok {
		kind = string(wmiErr.Kind)
	}
	ConnectAttemptsTotal.WithLabelValues(outcomeFailure, kind).Inc()
	ConnectDuration.WithLabelValues(outcomeFailure).Observe(seconds)
}

func observeTeardown(err error) {
	if err != nil {
		DisconnectsTotal.WithLabelValues(outcomeFailure).Inc()
		return
	}
	DisconnectsTotal.WithLabelValues(outcomeSuccess).Inc()
}
