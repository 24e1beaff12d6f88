// Package metrics exposes the worker and dashboard Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mukhtiarDev/personal-health-monitor/internal/agent"
)

// Metrics holds every collector the process registers.
type Metrics struct {
	cycles        prometheus.Counter
	cycleFailures *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	classified    *prometheus.CounterVec
	escalations   prometheus.Counter
	skipped       *prometheus.CounterVec
	state         *prometheus.GaugeVec
	decisions     *prometheus.CounterVec
	ingested      prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "healthmon_cycles_total",
			Help: "Coordinator cycles started.",
		}),
		cycleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthmon_cycle_failures_total",
			Help: "Agent runs aborted by an error, by agent.",
		}, []string{"agent"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthmon_cycle_duration_seconds",
			Help:    "Wall time of one analyze + escalate cycle.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		classified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthmon_readings_classified_total",
			Help: "Readings committed as processed, by severity.",
		}, []string{"severity"}),
		escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "healthmon_escalations_total",
			Help: "Approval requests escalated.",
		}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthmon_items_skipped_total",
			Help: "Items another worker handled first, by agent.",
		}, []string{"agent"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "healthmon_coordinator_state",
			Help: "1 for the coordinator's current state, 0 otherwise.",
		}, []string{"state"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthmon_approval_decisions_total",
			Help: "Operator decisions applied, by outcome.",
		}, []string{"decision"}),
		ingested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "healthmon_readings_ingested_total",
			Help: "Readings appended through the dashboard API.",
		}),
	}
	reg.MustRegister(
		m.cycles, m.cycleFailures, m.cycleDuration, m.classified,
		m.escalations, m.skipped, m.state, m.decisions, m.ingested,
	)
	return m
}

// ObserveCycle records the outcome of one coordinator cycle.
func (m *Metrics) ObserveCycle(results []agent.Result, elapsed time.Duration) {
	m.cycles.Inc()
	m.cycleDuration.Observe(elapsed.Seconds())

	for _, r := range results {
		if r.Failed() {
			m.cycleFailures.WithLabelValues(r.Agent).Inc()
		}
		if r.Skipped > 0 {
			m.skipped.WithLabelValues(r.Agent).Add(float64(r.Skipped))
		}
		switch r.Agent {
		case agent.AnalyzerName:
			m.classified.WithLabelValues("critical").Add(float64(r.Critical))
			m.classified.WithLabelValues("warning").Add(float64(r.Warning))
			m.classified.WithLabelValues("normal").Add(float64(r.Normal))
		case agent.EscalatorName:
			m.escalations.Add(float64(r.Processed))
		}
	}
}

// SetState marks current as the active state among all.
func (m *Metrics) SetState(current string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		m.state.WithLabelValues(s).Set(v)
	}
}

// ApprovalDecided counts an operator approve or reject.
func (m *Metrics) ApprovalDecided(decision string) {
	m.decisions.WithLabelValues(decision).Inc()
}

// ReadingIngested counts a reading appended through the API.
func (m *Metrics) ReadingIngested() {
	m.ingested.Inc()
}

// RegisterMirrorDrops exposes the audit mirror's dropped-event count.
func RegisterMirrorDrops(reg prometheus.Registerer, dropped func() uint64) {
	reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "healthmon_audit_mirror_dropped_total",
		Help: "Audit events discarded because the mirror queue was full.",
	}, func() float64 { return float64(dropped()) }))
}
