package infra

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"amm_go/internal/domain"
	"amm_go/internal/pricing"
)

// PoolSource lists pools for the reserve gauges.
type PoolSource interface {
	Pools(ctx context.Context) ([]domain.Pool, error)
}

// Collector exports Metrics and per-pool reserves to Prometheus.
type Collector struct {
	metrics *Metrics
	pools   PoolSource

	commands    *prometheus.Desc
	errors      *prometheus.Desc
	activity    *prometheus.Desc
	latency     *prometheus.Desc
	connections *prometheus.Desc
	reserve     *prometheus.Desc
	shares      *prometheus.Desc
}

// NewCollector creates a collector. pools may be nil.
func NewCollector(m *Metrics, pools PoolSource) *Collector {
	return &Collector{
		metrics: m,
		pools:   pools,
		commands: prometheus.NewDesc("amm_commands_processed_total",
			"Commands applied by the sequencer", nil, nil),
		errors: prometheus.NewDesc("amm_commands_rejected_total",
			"Commands rejected by the engine", nil, nil),
		activity: prometheus.NewDesc("amm_notifications_total",
			"Committed engine notifications", []string{"kind"}, nil),
		latency: prometheus.NewDesc("amm_command_latency_avg_seconds",
			"Average command latency", nil, nil),
		connections: prometheus.NewDesc("amm_stream_subscribers",
			"Connected event stream clients", nil, nil),
		reserve: prometheus.NewDesc("amm_pool_reserve",
			"Pool reserve in base units", []string{"pool_id", "asset"}, nil),
		shares: prometheus.NewDesc("amm_pool_total_shares",
			"Outstanding pool shares", []string{"pool_id"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.commands
	ch <- c.errors
	ch <- c.activity
	ch <- c.latency
	ch <- c.connections
	ch <- c.reserve
	ch <- c.shares
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.metrics.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.commands, prometheus.CounterValue, float64(snap.CommandsProcessed))
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(snap.ErrorsTotal))
	ch <- prometheus.MustNewConstMetric(c.activity, prometheus.CounterValue, float64(snap.PoolsCreated), domain.KindPoolCreated)
	ch <- prometheus.MustNewConstMetric(c.activity, prometheus.CounterValue, float64(snap.LiquidityAdded), domain.KindLiquidityAdded)
	ch <- prometheus.MustNewConstMetric(c.activity, prometheus.CounterValue, float64(snap.LiquidityRemoved), domain.KindLiquidityRemoved)
	ch <- prometheus.MustNewConstMetric(c.activity, prometheus.CounterValue, float64(snap.Swaps), domain.KindTokensSwapped)
	ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, time.Duration(snap.AvgLatencyNs).Seconds())
	ch <- prometheus.MustNewConstMetric(c.connections, prometheus.GaugeValue, float64(snap.ActiveConnections))

	if c.pools == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	pools, err := c.pools.Pools(ctx)
	if err != nil {
		return
	}
	for i := range pools {
		p := &pools[i]
		id := p.ID.Hex()
		ch <- prometheus.MustNewConstMetric(c.reserve, prometheus.GaugeValue,
			pricing.ToDecimal(&p.ReserveA, 0).InexactFloat64(), id, p.AssetA.Hex())
		ch <- prometheus.MustNewConstMetric(c.reserve, prometheus.GaugeValue,
			pricing.ToDecimal(&p.ReserveB, 0).InexactFloat64(), id, p.AssetB.Hex())
		ch <- prometheus.MustNewConstMetric(c.shares, prometheus.GaugeValue,
			pricing.ToDecimal(&p.TotalShares, 0).InexactFloat64(), id)
	}
}
