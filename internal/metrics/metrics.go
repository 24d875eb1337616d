// Package metrics exposes the latest observation as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iolloyd/netwatch/internal/models"
)

const namespace = "netwatch"

// Collector is a report sink that keeps gauges of the last report and
// counters of identity changes
type Collector struct {
	registry    *prometheus.Registry
	connections *prometheus.GaugeVec
	totals      *prometheus.GaugeVec
	changes     *prometheus.CounterVec
	diagnostics *prometheus.CounterVec
	reports     prometheus.Counter
	targetPID   *prometheus.GaugeVec
}

// New creates a collector with its own registry, which also carries the Go
// runtime and process collectors
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Connections owned by a tracked process in the last report, by state class.",
		}, []string{"pid", "name", "state"}),
		totals: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_total_by_state",
			Help:      "Connections counted in the last report's totals, by state class.",
		}, []string{"state"}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "target_changes_total",
			Help:      "Identity transitions of tracked targets.",
		}, []string{"name"}),
		diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_total",
			Help:      "Diagnostics emitted while resolving targets, by level.",
		}, []string{"level"}),
		reports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Observation cycles that produced a report.",
		}),
		targetPID: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_pid",
			Help:      "Current pid of a tracked target; 0 while unresolved.",
		}, []string{"name"}),
	}

	c.registry.MustRegister(
		c.connections, c.totals, c.changes, c.diagnostics, c.reports, c.targetPID,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Handler serves the collector's registry
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Report(r *models.Report) {
	c.reports.Inc()

	// groups come and go with their processes
	c.connections.Reset()
	for _, g := range r.Groups {
		pid := strconv.Itoa(g.PID)
		c.connections.WithLabelValues(pid, g.Name, "listen").Set(float64(g.Counts.Listen))
		c.connections.WithLabelValues(pid, g.Name, "established").Set(float64(g.Counts.Established))
		c.connections.WithLabelValues(pid, g.Name, "other").Set(float64(g.Counts.Other))
	}

	c.totals.WithLabelValues("listen").Set(float64(r.Total.Listen))
	c.totals.WithLabelValues("established").Set(float64(r.Total.Established))
	c.totals.WithLabelValues("other").Set(float64(r.Total.Other))
}

func (c *Collector) Change(ch models.Change) {
	c.changes.WithLabelValues(ch.Name).Inc()
	c.targetPID.WithLabelValues(ch.Name).Set(float64(ch.NewPID))
}

func (c *Collector) Diagnostic(d models.Diagnostic) {
	c.diagnostics.WithLabelValues(string(d.Level)).Inc()
}
