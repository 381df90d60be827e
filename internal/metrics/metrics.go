// Package metrics holds the Prometheus collectors for scans, price lookups and
// sweeps. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Price lookup outcomes.
const (
	PricePriced      = "priced"
	PriceUnavailable = "unavailable"
	PriceFailed      = "failed"
)

// Chain read outcomes.
const (
	ReadOK     = "ok"
	ReadFailed = "failed"
	ReadNoRPC  = "no_rpc"
)

type Metrics struct {
	chainReads   *prometheus.CounterVec
	tokensFound  *prometheus.CounterVec
	priceLookups *prometheus.CounterVec
	sweeps       *prometheus.CounterVec
	scanDuration prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		chainReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dustsweeper",
			Name:      "chain_reads_total",
			Help:      "Balance reads per chain, by kind (native, erc20) and outcome.",
		}, []string{"chain", "kind", "outcome"}),
		tokensFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dustsweeper",
			Name:      "tokens_found_total",
			Help:      "Non-zero balances discovered per chain.",
		}, []string{"chain"}),
		priceLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dustsweeper",
			Name:      "price_lookups_total",
			Help:      "USD price lookups by outcome.",
		}, []string{"outcome"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dustsweeper",
			Name:      "sweeps_total",
			Help:      "Finished token sweeps by chain and terminal state.",
		}, []string{"chain", "state"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dustsweeper",
			Name:      "scan_duration_seconds",
			Help:      "Wall time of a full discovery pass.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
	}
	reg.MustRegister(m.chainReads, m.tokensFound, m.priceLookups, m.sweeps, m.scanDuration)
	return m
}

func (m *Metrics) ChainRead(chain, kind, outcome string) {
	if m == nil {
		return
	}
	m.chainReads.WithLabelValues(chain, kind, outcome).Inc()
}

func (m *Metrics) TokensFound(chain string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tokensFound.WithLabelValues(chain).Add(float64(n))
}

func (m *Metrics) PriceLookup(outcome string) {
	if m == nil {
		return
	}
	m.priceLookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SweepFinished(chain, state string) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(chain, state).Inc()
}

func (m *Metrics) ScanDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.scanDuration.Observe(d.Seconds())
}
