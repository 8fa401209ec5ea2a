// Package metrics holds the Prometheus instruments of a sync pass.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "detiksync"

// Metrics groups all instruments. A nil *Metrics records nothing, so
// callers need no guards.
type Metrics struct {
	ItemsFetched   prometheus.Counter
	ItemsSkipped   prometheus.Counter
	Downloads      *prometheus.CounterVec
	Publishes      *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	LastRun        prometheus.Gauge
	LastRunSuccess prometheus.Gauge
}

// New registers all instruments with reg. Use a private registry per
// process; the default one carries Go runtime collectors we do not export.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ItemsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_fetched_total",
			Help:      "Candidate items returned by the source.",
		}),
		ItemsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_skipped_total",
			Help:      "Candidates already published to every destination.",
		}),
		Downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Media downloads by result.",
		}, []string{"result"}),
		Publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Publish attempts by destination and result.",
		}, []string{"destination", "result"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall clock time of a pass.",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 1800},
		}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last pass finished.",
		}),
		LastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last pass finished without a fatal error.",
		}),
	}

	reg.MustRegister(
		m.ItemsFetched,
		m.ItemsSkipped,
		m.Downloads,
		m.Publishes,
		m.RunDuration,
		m.LastRun,
		m.LastRunSuccess,
	)
	return m
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

// Fetched counts n candidates.
func (m *Metrics) Fetched(n int) {
	if m == nil {
		return
	}
	m.ItemsFetched.Add(float64(n))
}

// Skipped counts one already complete candidate.
func (m *Metrics) Skipped() {
	if m == nil {
		return
	}
	m.ItemsSkipped.Inc()
}

// Downloaded counts one download.
func (m *Metrics) Downloaded(ok bool) {
	if m == nil {
		return
	}
	m.Downloads.WithLabelValues(result(ok)).Inc()
}

// Published counts one publish attempt to destination.
func (m *Metrics) Published(destination string, ok bool) {
	if m == nil {
		return
	}
	m.Publishes.WithLabelValues(destination, result(ok)).Inc()
}

// RunFinished records the end of a pass.
func (m *Metrics) RunFinished(at time.Time, took time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.RunDuration.Observe(took.Seconds())
	m.LastRun.Set(float64(at.Unix()))
	if ok {
		m.LastRunSuccess.Set(1)
	} else {
		m.LastRunSuccess.Set(0)
	}
}

// WriteTextfile writes everything g gathers in the text exposition format,
// for the node exporter textfile collector or as a CI artifact.
func WriteTextfile(g prometheus.Gatherer, path string) error {
	return prometheus.WriteToTextfile(path, g)
}
