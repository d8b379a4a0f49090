// Package metrics exposes prometheus counters for the proposal loading
// pipeline: which transport served each stage and which stages failed.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	PrimaryServed   *prometheus.CounterVec
	FallbackServed  *prometheus.CounterVec
	FallbackFailed  *prometheus.CounterVec
	StageFailures   *prometheus.CounterVec
	LoadsStarted    prometheus.Counter
	LoadsCompleted  prometheus.Counter
	LoadsFailed     prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		PrimaryServed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quotely_fetch_primary_served_total",
			Help: "Fetches answered by the structured record-store client",
		}, []string{"label"}),
		FallbackServed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quotely_fetch_fallback_served_total",
			Help: "Fetches answered by the raw HTTP fallback transport",
		}, []string{"label"}),
		FallbackFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quotely_fetch_fallback_failed_total",
			Help: "Fetches where both transports failed",
		}, []string{"label"}),
		StageFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quotely_loader_stage_failures_total",
			Help: "Best-effort loader stages that were dropped after failing",
		}, []string{"stage"}),
		LoadsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quotely_loader_loads_started_total",
			Help: "Proposal loads started",
		}),
		LoadsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quotely_loader_loads_completed_total",
			Help: "Proposal loads that reached the complete state",
		}),
		LoadsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quotely_loader_loads_failed_total",
			Help: "Proposal loads that ended in the error state",
		}),
	}
}

func (m *Metrics) ServedByPrimary(label string) {
	if m == nil {
		return
	}
	m.PrimaryServed.WithLabelValues(label).Inc()
}

func (m *Metrics) ServedByFallback(label string) {
	if m == nil {
		return
	}
	m.FallbackServed.WithLabelValues(label).Inc()
}

func (m *Metrics) BothTransportsFailed(label string) {
	if m == nil {
		return
	}
	m.FallbackFailed.WithLabelValues(label).Inc()
}

func (m *Metrics) StageDropped(stage string) {
	if m == nil {
		return
	}
	m.StageFailures.WithLabelValues(stage).Inc()
}
