package infra

import (
	"context"
	"sync/atomic"
	"time"

	"amm_go/internal/domain"
)

// Metrics provides lightweight in-process counters.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	commandsProcessed atomic.Uint64
	errorsTotal       atomic.Uint64
	poolsCreated      atomic.Uint64
	liquidityAdded    atomic.Uint64
	liquidityRemoved  atomic.Uint64
	swaps             atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordEvent records one processed command with its latency.
func (m *Metrics) RecordEvent(latencyNs int64) {
	m.commandsProcessed.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordError records a rejected command.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// Emit counts committed engine notifications. Metrics is an EventSink.
func (m *Metrics) Emit(_ context.Context, n domain.Notification) error {
	switch n.Kind() {
	case domain.KindPoolCreated:
		m.poolsCreated.Add(1)
	case domain.KindLiquidityAdded:
		m.liquidityAdded.Add(1)
	case domain.KindLiquidityRemoved:
		m.liquidityRemoved.Add(1)
	case domain.KindTokensSwapped:
		m.swaps.Add(1)
	}
	return nil
}

// SetActiveConnections sets the current stream subscriber count.
func (m *Metrics) SetActiveConnections(count int32) {
	m.activeConnections.Store(count)
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	CommandsProcessed uint64
	ErrorsTotal       uint64
	PoolsCreated      uint64
	LiquidityAdded    uint64
	LiquidityRemoved  uint64
	Swaps             uint64
	AvgLatencyNs      int64
	ActiveConnections int32
	Timestamp         time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		CommandsProcessed: m.commandsProcessed.Load(),
		ErrorsTotal:       m.errorsTotal.Load(),
		PoolsCreated:      m.poolsCreated.Load(),
		LiquidityAdded:    m.liquidityAdded.Load(),
		LiquidityRemoved:  m.liquidityRemoved.Load(),
		Swaps:             m.swaps.Load(),
		AvgLatencyNs:      avgLatency,
		ActiveConnections: m.activeConnections.Load(),
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.commandsProcessed.Store(0)
	m.errorsTotal.Store(0)
	m.poolsCreated.Store(0)
	m.liquidityAdded.Store(0)
	m.liquidityRemoved.Store(0)
	m.swaps.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.activeConnections.Store(0)
}
