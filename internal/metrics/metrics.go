// Package metrics exposes pipeline counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/eventsync/internal/model"
)

const namespace = "eventsync"

// Metrics owns a private registry so tests and multiple instances do not
// collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	adapterEvents   *prometheus.GaugeVec
	adapterDuration *prometheus.HistogramVec
	adapterFailures *prometheus.CounterVec
	syncEvents      *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	runs            *prometheus.CounterVec
	lastRun         *prometheus.GaugeVec
	reminders       *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		adapterEvents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "adapter_events",
			Help:      "Events returned by each adapter on its last fetch",
		}, []string{"source"}),
		adapterDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "adapter_fetch_duration_seconds",
			Help:      "Time spent in each adapter fetch",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"source"}),
		adapterFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_failures_total",
			Help:      "Adapter fetches that returned an error",
		}, []string{"source"}),
		syncEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_events_total",
			Help:      "Events reconciled by outcome",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_transitions_total",
			Help:      "Cleanup status transitions by target status",
		}, []string{"status"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed runs by mode",
		}, []string{"mode", "dry_run"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run of each mode finished",
		}, []string{"mode"}),
		reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_total",
			Help:      "Reminder deliveries by result",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.adapterEvents, m.adapterDuration, m.adapterFailures,
		m.syncEvents, m.transitions, m.runs, m.lastRun, m.reminders,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry for /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveAdapter records one adapter fetch. It satisfies aggregate.Observer.
func (m *Metrics) ObserveAdapter(src model.Source, events int, err error, elapsed time.Duration) {
	s := string(src)
	m.adapterDuration.WithLabelValues(s).Observe(elapsed.Seconds())
	if err != nil {
		m.adapterFailures.WithLabelValues(s).Inc()
		m.adapterEvents.WithLabelValues(s).Set(0)
		return
	}
	m.adapterEvents.WithLabelValues(s).Set(float64(events))
}

func (m *Metrics) ObserveSync(s model.SyncSummary) {
	m.syncEvents.WithLabelValues("inserted").Add(float64(s.Inserted))
	m.syncEvents.WithLabelValues("updated").Add(float64(s.Updated))
	m.syncEvents.WithLabelValues("unchanged").Add(float64(s.Unchanged))
	m.syncEvents.WithLabelValues("error").Add(float64(s.Errors))
}

func (m *Metrics) ObserveCleanup(s model.CleanupSummary) {
	m.transitions.WithLabelValues(string(model.StatusPast)).Add(float64(s.Archived))
	m.transitions.WithLabelValues(string(model.StatusCancelled)).Add(float64(s.Cancelled))
}

// ObserveRun counts a finished run record.
func (m *Metrics) ObserveRun(r model.Run) {
	dry := "false"
	if r.DryRun {
		dry = "true"
	}
	m.runs.WithLabelValues(r.Mode, dry).Inc()
	m.lastRun.WithLabelValues(r.Mode).Set(float64(r.FinishedAt.Unix()))
}

func (m *Metrics) ObserveReminders(sent, errors int) {
	m.reminders.WithLabelValues("sent").Add(float64(sent))
	m.reminders.WithLabelValues("error").Add(float64(errors))
}
