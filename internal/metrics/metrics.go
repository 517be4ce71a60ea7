// Package metrics exposes Prometheus instruments for the monitoring daemon.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the instruments recorded across the daemon. All instruments
// are registered against the registry passed to New, so tests can use a
// private registry.
type Metrics struct {
	CheckCounter      *prometheus.CounterVec
	TransitionCounter *prometheus.CounterVec
	SweepCounter      *prometheus.CounterVec
	IssueCounter      prometheus.Counter
	AlertCounter      *prometheus.CounterVec
	OpenEpisodeGauge  prometheus.Gauge
	LastCycleGauge    prometheus.Gauge
	CycleDuration     prometheus.Histogram
}

// New creates and registers the daemon's instruments.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		CheckCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mountwarden_checks_total",
			Help: "Mount checks recorded, by probe status.",
		}, []string{"status"}),
		TransitionCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mountwarden_episode_transitions_total",
			Help: "Failure episode lifecycle transitions, by kind.",
		}, []string{"transition"}),
		SweepCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mountwarden_retention_deleted_total",
			Help: "Rows deleted by retention sweeps, by table.",
		}, []string{"table"}),
		IssueCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mountwarden_offhours_issues_total",
			Help: "Issues captured by the off-hours batcher.",
		}),
		AlertCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mountwarden_alerts_total",
			Help: "Alert emails sent, by kind.",
		}, []string{"kind"}),
		OpenEpisodeGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mountwarden_open_episodes",
			Help: "Failure episodes currently open across the fleet.",
		}),
		LastCycleGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mountwarden_last_cycle_timestamp_seconds",
			Help: "Unix time of the last completed monitoring cycle.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mountwarden_cycle_duration_seconds",
			Help:    "Duration of full monitoring cycles.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}

	collectors := []prometheus.Collector{
		m.CheckCounter,
		m.TransitionCounter,
		m.SweepCounter,
		m.IssueCounter,
		m.AlertCounter,
		m.OpenEpisodeGauge,
		m.LastCycleGauge,
		m.CycleDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	return m, nil
}

// RecordCheck counts one recorded mount check.
func (m *Metrics) RecordCheck(status string) {
	m.CheckCounter.WithLabelValues(status).Inc()
}

// RecordTransition counts one episode lifecycle transition. No-transition
// ingests are not counted.
func (m *Metrics) RecordTransition(transition string) {
	if transition == "" {
		return
	}
	m.TransitionCounter.WithLabelValues(transition).Inc()
}

// RecordSweep adds the rows a retention sweep deleted from one table.
func (m *Metrics) RecordSweep(table string, deleted int64) {
	if deleted <= 0 {
		return
	}
	m.SweepCounter.WithLabelValues(table).Add(float64(deleted))
}

// RecordIssueBatched counts one issue captured during the quiet window.
func (m *Metrics) RecordIssueBatched() {
	m.IssueCounter.Inc()
}

// RecordAlert counts one alert email by kind ("cycle" or "morning").
func (m *Metrics) RecordAlert(kind string) {
	m.AlertCounter.WithLabelValues(kind).Inc()
}

// SetOpenEpisodes records the current number of open failure episodes.
func (m *Metrics) SetOpenEpisodes(n int) {
	m.OpenEpisodeGauge.Set(float64(n))
}

// ObserveCycle records a completed monitoring cycle.
func (m *Metrics) ObserveCycle(duration time.Duration, finishedAt time.Time) {
	m.CycleDuration.Observe(duration.Seconds())
	m.LastCycleGauge.Set(float64(finishedAt.Unix()))
}
