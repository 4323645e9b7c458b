package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"alertsync/internal/reconciler"
)

// Metrics holds the reconcile counters. Sync runs push them to a
// Pushgateway; serve mode exposes them on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	runs        prometheus.Counter
	created     prometheus.Counter
	closed      prometheus.Counter
	reopened    prometheus.Counter
	failed      prometheus.Counter
	runDuration prometheus.Histogram
}

// New builds a self-contained registry with the alertsync collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertsync_runs_total",
			Help: "Reconcile runs executed.",
		}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertsync_tickets_created_total",
			Help: "Tickets created for open alerts.",
		}),
		closed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertsync_tickets_closed_total",
			Help: "Tickets closed for resolved alerts.",
		}),
		reopened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertsync_tickets_reopened_total",
			Help: "Tickets reopened after external closure.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertsync_items_failed_total",
			Help: "Per-alert failures during reconcile runs.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alertsync_run_duration_seconds",
			Help:    "Duration of reconcile runs.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(m.runs, m.created, m.closed, m.reopened, m.failed, m.runDuration)
	return m
}

// ObserveReport records the outcome of one reconcile run.
func (m *Metrics) ObserveReport(rep *reconciler.Report) {
	m.runs.Inc()
	m.created.Add(float64(rep.Created))
	m.closed.Add(float64(rep.Closed))
	m.reopened.Add(float64(rep.Reopened))
	m.failed.Add(float64(rep.Failed))
	m.runDuration.Observe(rep.Duration.Seconds())
}

// Push sends the registry to a Pushgateway. Used by sync runs, which exit
// before a scraper could reach them.
func (m *Metrics) Push(gatewayURL, job string) error {
	if err := push.New(gatewayURL, job).Gatherer(m.registry).Push(); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}

// Handler exposes the registry for scraping in serve mode.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
