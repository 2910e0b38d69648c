// Package metrics collects per-build counters and writes them in the
// prometheus text format for the node-exporter textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Record results.
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
	ResultSkipped  = "skipped"
)

// Metrics owns a private registry; nothing is registered globally.
type Metrics struct {
	reg *prometheus.Registry

	records        *prometheus.CounterVec
	missingSources prometheus.Counter
	failedSources  prometheus.Counter
	entries        *prometheus.GaugeVec
	excluded       *prometheus.CounterVec
	lastBuild      prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		records: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventcal_records_total",
			Help: "Records seen by the merger, by result",
		}, []string{"result"}),
		missingSources: f.NewCounter(prometheus.CounterOpts{
			Name: "eventcal_sources_missing_total",
			Help: "Index entries whose file was not found",
		}),
		failedSources: f.NewCounter(prometheus.CounterOpts{
			Name: "eventcal_sources_failed_total",
			Help: "Sources dropped because of malformed content",
		}),
		entries: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "eventcal_calendar_entries",
			Help: "Entries written to each calendar document in the last build",
		}, []string{"document"}),
		excluded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventcal_calendar_excluded_total",
			Help: "Events left out of a calendar document, by reason",
		}, []string{"document", "reason"}),
		lastBuild: f.NewGauge(prometheus.GaugeOpts{
			Name: "eventcal_last_build_timestamp_seconds",
			Help: "Unix time of the last completed build",
		}),
	}
}

func (m *Metrics) AddRecords(result string, n int) {
	m.records.WithLabelValues(result).Add(float64(n))
}

func (m *Metrics) AddMissingSources(n int) {
	m.missingSources.Add(float64(n))
}

func (m *Metrics) AddFailedSources(n int) {
	m.failedSources.Add(float64(n))
}

func (m *Metrics) SetEntries(document string, n int) {
	m.entries.WithLabelValues(document).Set(float64(n))
}

func (m *Metrics) IncExcluded(document, reason string) {
	m.excluded.WithLabelValues(document, reason).Inc()
}

func (m *Metrics) MarkBuild(t time.Time) {
	m.lastBuild.Set(float64(t.Unix()))
}

// Gatherer exposes the registry, mainly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.reg
}

// WriteTextfile writes all metrics to path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.reg)
}
