// Package metrics exposes ring maintenance and routing counters for a node.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chord"

// Lookup results
const (
	LookupLocal     = "local"
	LookupForwarded = "forwarded"
	LookupExhausted = "exhausted"
	LookupFailed    = "failed"
)

// Maintenance activities
const (
	ActivityStabilize        = "stabilize"
	ActivityFixFingers       = "fix_fingers"
	ActivityReconcile        = "reconcile"
	ActivityCheckPredecessor = "check_predecessor"
)

// Metrics holds the collectors of a single node. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	lookups           *prometheus.CounterVec
	forwardRetries    prometheus.Counter
	maintenanceRuns   *prometheus.CounterVec
	evictions         prometheus.Counter
	successorChanges  prometheus.Counter
	predecessorChange prometheus.Counter
	successorListLen  prometheus.Gauge
	joined            prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg gets a
// fresh registry so several nodes can live in one process.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: reg,
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "FindSuccessor requests handled, by result.",
		}, []string{"result"}),
		forwardRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forward_retries_total",
			Help:      "Lookups retried on another node after the forward target failed.",
		}),
		maintenanceRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "maintenance_runs_total",
			Help:      "Runs of each periodic maintenance activity, by outcome.",
		}, []string{"activity", "result"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_evictions_total",
			Help:      "Peers removed from the routing state after failing.",
		}),
		successorChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "successor_changes_total",
			Help:      "Changes of the direct successor.",
		}),
		predecessorChange: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predecessor_changes_total",
			Help:      "Changes of the predecessor, including clears.",
		}),
		successorListLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "successor_list_length",
			Help:      "Current length of the successor list.",
		}),
		joined: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "joined",
			Help:      "1 once the node is part of a ring.",
		}),
	}

	reg.MustRegister(
		m.lookups,
		m.forwardRetries,
		m.maintenanceRuns,
		m.evictions,
		m.successorChanges,
		m.predecessorChange,
		m.successorListLen,
		m.joined,
	)
	return m
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Lookup(result string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ForwardRetry() {
	if m == nil {
		return
	}
	m.forwardRetries.Inc()
}

// Maintenance records one run of activity.
func (m *Metrics) Maintenance(activity string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.maintenanceRuns.WithLabelValues(activity, result).Inc()
}

func (m *Metrics) Eviction() {
	if m == nil {
		return
	}
	m.evictions.Inc()
}

func (m *Metrics) SuccessorChanged(listLen int) {
	if m == nil {
		return
	}
	m.successorChanges.Inc()
	m.successorListLen.Set(float64(listLen))
}

func (m *Metrics) SuccessorListLength(n int) {
	if m == nil {
		return
	}
	m.successorListLen.Set(float64(n))
}

func (m *Metrics) PredecessorChanged() {
	if m == nil {
		return
	}
	m.predecessorChange.Inc()
}

func (m *Metrics) SetJoined(joined bool) {
	if m == nil {
		return
	}
	if joined {
		m.joined.Set(1)
	} else {
		m.joined.Set(0)
	}
}
