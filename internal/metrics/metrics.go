// Package metrics exposes Prometheus instrumentation for meterwatch.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/jgoulah/meterwatch/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors shared by the resolver, scraper and dashboard
type Metrics struct {
	served    *prometheus.CounterVec
	skipped   *prometheus.CounterVec
	scrapes   *prometheus.CounterVec
	alerts    *prometheus.CounterVec
	remaining prometheus.Gauge
	power     prometheus.Gauge
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		served: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meterwatch",
			Name:      "resolver_served_total",
			Help:      "Series resolved, by granularity and serving tier.",
		}, []string{"granularity", "tier"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meterwatch",
			Name:      "resolver_fallthrough_total",
			Help:      "Resolver tiers skipped, by reason.",
		}, []string{"reason"}),
		scrapes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meterwatch",
			Name:      "scrape_total",
			Help:      "Meter page scrapes, by result.",
		}, []string{"result"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meterwatch",
			Name:      "alerts_total",
			Help:      "Alert notices raised, by kind.",
		}, []string{"kind"}),
		remaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "meterwatch",
			Name:      "remaining_kwh",
			Help:      "Remaining energy balance in kWh.",
		}),
		power: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "meterwatch",
			Name:      "power_kw",
			Help:      "Instantaneous power in kW.",
		}),
	}
	reg.MustRegister(m.served, m.skipped, m.scrapes, m.alerts, m.remaining, m.power)
	return m
}

// Served counts a series served by tier
func (m *Metrics) Served(g models.Granularity, tier string) {
	if m == nil {
		return
	}
	m.served.WithLabelValues(string(g), tier).Inc()
}

// Fallthrough counts a tier that was skipped
func (m *Metrics) Fallthrough(reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(reason).Inc()
}

// Scrape counts a scrape attempt
func (m *Metrics) Scrape(result string) {
	if m == nil {
		return
	}
	m.scrapes.WithLabelValues(result).Inc()
}

// Alert counts a raised notice
func (m *Metrics) Alert(kind string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(kind).Inc()
}

// ObserveSnapshot updates the meter gauges
func (m *Metrics) ObserveSnapshot(snap models.MeterSnapshot) {
	if m == nil {
		return
	}
	m.remaining.Set(snap.RemainingPower)
	m.power.Set(snap.CurrentPower)
}
