// Package observability provides Prometheus metrics for the pool service.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pool metrics on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Operation metrics
	Operations      *prometheus.CounterVec
	OperationErrors *prometheus.CounterVec

	// Distribution metrics
	DistributionRuns  *prometheus.CounterVec
	DistributedAmount *prometheus.CounterVec
	WithdrawnAmount   *prometheus.CounterVec

	// Ledger gauges
	Investors   prometheus.Gauge
	TotalSupply prometheus.Gauge
	Unsold      prometheus.Gauge

	// Health metrics
	LastSuccessfulDistribution prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "cloudmining"
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Total number of successful ledger operations",
		}, []string{"op"}),
		OperationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operation_errors_total",
			Help:      "Total number of failed ledger operations",
		}, []string{"op"}),
		DistributionRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "distribution",
			Name:      "runs_total",
			Help:      "Total number of distribution passes by asset and outcome",
		}, []string{"asset", "outcome"}),
		DistributedAmount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "distribution",
			Name:      "amount_total",
			Help:      "Amount of each mined asset credited, in token units",
		}, []string{"asset"}),
		WithdrawnAmount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "distribution",
			Name:      "withdrawn_total",
			Help:      "Amount of each mined asset paid out, in token units",
		}, []string{"asset"}),
		Investors: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "investors",
			Help:      "Number of addresses in the investor roster",
		}),
		TotalSupply: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "total_supply_shares",
			Help:      "Total number of shares issued",
		}),
		Unsold: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "unsold_shares",
			Help:      "Shares still held by the reservoir",
		}),
		LastSuccessfulDistribution: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_distribution_timestamp",
			Help:      "Unix timestamp of the last successful distribution pass",
		}),
	}
}

// Registry exposes the registry for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordOperation(op string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.OperationErrors.WithLabelValues(op).Inc()
		return
	}
	m.Operations.WithLabelValues(op).Inc()
}

// RecordDistribution counts a pass; amount is in token units.
func (m *Metrics) RecordDistribution(asset, outcome string, amount float64, unixTime float64) {
	if m == nil {
		return
	}
	m.DistributionRuns.WithLabelValues(asset, outcome).Inc()
	if amount > 0 {
		m.DistributedAmount.WithLabelValues(asset).Add(amount)
	}
	if outcome != "error" {
		m.LastSuccessfulDistribution.Set(unixTime)
	}
}

func (m *Metrics) RecordWithdrawal(asset string, amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.WithdrawnAmount.WithLabelValues(asset).Add(amount)
}

func (m *Metrics) UpdateLedger(investors int, totalSupply, unsold float64) {
	if m == nil {
		return
	}
	m.Investors.Set(float64(investors))
	m.TotalSupply.Set(totalSupply)
	m.Unsold.Set(unsold)
}
