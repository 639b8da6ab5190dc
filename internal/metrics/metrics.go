package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register and
// every helper no-ops until that happens.
var (
	regOK atomic.Bool

	probeResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "probe",
			Name:      "results_total",
			Help:      "Probe outcomes by classification.",
		}, []string{"outcome"},
	)
	probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "warden",
			Subsystem: "probe",
			Name:      "duration_seconds",
			Help:      "Wall time of individual health probes.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"},
	)
	probeCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "probe",
			Name:      "cache_hits_total",
			Help:      "Probes suppressed by a fresh cached result.",
		},
	)
	retrierFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "probe",
			Name:      "retry_failures_total",
			Help:      "Failed connectivity attempts by classification.",
		}, []string{"outcome"},
	)
	processStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "process",
			Name:      "starts_total",
			Help:      "Number of successful child process starts.",
		}, []string{"name"},
	)
	processExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "process",
			Name:      "exits_total",
			Help:      "Child exits by kind (requested, unexpected).",
		}, []string{"name", "kind"},
	)
	forcedKills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "process",
			Name:      "forced_kills_total",
			Help:      "Children that did not exit within their grace period.",
		}, []string{"name"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "orchestrator",
			Name:      "state_transitions_total",
			Help:      "Orchestrator state machine transitions.",
		}, []string{"from", "to"},
	)
	healthState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "warden",
			Subsystem: "orchestrator",
			Name:      "health_state",
			Help:      "Current health (1 = active state, 0 = inactive).",
		}, []string{"health"},
	)
)

// Register registers all collectors with r. Safe to call multiple times;
// an AlreadyRegisteredError from a duplicate registration is ignored.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		probeResults, probeDuration, probeCacheHits, retrierFailures,
		processStarts, processExits, forcedKills, stateTransitions, healthState,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves Prometheus metrics for the DefaultGatherer. The caller wires
// the route.
func Handler() http.Handler { return promhttp.Handler() }

func ObserveProbe(outcome string, seconds float64) {
	if regOK.Load() {
		probeResults.WithLabelValues(outcome).Inc()
		probeDuration.WithLabelValues(outcome).Observe(seconds)
	}
}

func IncProbeCacheHit() {
	if regOK.Load() {
		probeCacheHits.Inc()
	}
}

func IncRetrierFailure(outcome string) {
	if regOK.Load() {
		retrierFailures.WithLabelValues(outcome).Inc()
	}
}

func IncProcessStart(name string) {
	if regOK.Load() {
		processStarts.WithLabelValues(name).Inc()
	}
}

func IncProcessExit(name, kind string) {
	if regOK.Load() {
		processExits.WithLabelValues(name, kind).Inc()
	}
}

func IncForcedKill(name string) {
	if regOK.Load() {
		forcedKills.WithLabelValues(name).Inc()
	}
}

func RecordStateTransition(from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(from, to).Inc()
	}
}

func SetHealthState(health string, active bool) {
	if regOK.Load() {
		v := float64(0)
		if active {
			v = 1
		}
		healthState.WithLabelValues(health).Set(v)
	}
}
