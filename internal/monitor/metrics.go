package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_cycles_total",
		Help: "Trading cycles by outcome",
	}, []string{"outcome"})

	tradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_trades_total",
		Help: "Trade attempts by asset and result",
	}, []string{"asset", "result"})

	signalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_signals_total",
		Help: "Signals produced by the strategy engine",
	}, []string{"strategy", "signal"})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sentinel_cycle_duration_seconds",
		Help:    "Wall time of one trading cycle",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
	})

	killSwitchGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_kill_switch_active",
		Help: "1 while trading is halted by the kill switch",
	})

	consecutiveFailuresGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_consecutive_failures",
		Help: "Consecutive non-funding trade failures",
	})

	dailyLossGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_daily_loss_percent",
		Help: "Accumulated daily loss in percent",
	})
)

// Cycle outcomes.
const (
	OutcomeTraded   = "traded"
	OutcomeHold     = "hold"
	OutcomeBlocked  = "blocked"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
	OutcomePanicked = "panicked"
)

// SystemMetrics tracks loop performance for logs and the status surface and
// mirrors it into Prometheus.
type SystemMetrics struct {
	CycleLatency  *LatencyHistogram
	SignalLatency *LatencyHistogram
	LedgerLatency *LatencyHistogram

	totalCycles      uint64
	successfulTrades uint64
	failedTrades     uint64
	fundingFailures  uint64
	apiRequests      uint64
	apiErrors        uint64

	startedAt time.Time
}

// LatencyHistogram tracks latency samples with sliding window.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// NewSystemMetrics creates a new metrics instance.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		CycleLatency:  NewLatencyHistogram(1000),
		SignalLatency: NewLatencyHistogram(1000),
		LedgerLatency: NewLatencyHistogram(1000),
		startedAt:     time.Now(),
	}
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg and percentiles. Recomputed only after new samples.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false
	return h.cachedStats
}

// LatencyStats holds computed latency statistics in milliseconds.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

// RecordCycle counts a finished cycle and its duration.
func (m *SystemMetrics) RecordCycle(outcome string, d time.Duration) {
	atomic.AddUint64(&m.totalCycles, 1)
	m.CycleLatency.RecordDuration(d)
	cyclesTotal.WithLabelValues(outcome).Inc()
	cycleDuration.Observe(d.Seconds())
}

// RecordSignal counts a strategy decision.
func (m *SystemMetrics) RecordSignal(strategy, signal string, d time.Duration) {
	m.SignalLatency.RecordDuration(d)
	signalsTotal.WithLabelValues(strategy, signal).Inc()
}

// RecordTrade counts a confirmed trade.
func (m *SystemMetrics) RecordTrade(asset string, d time.Duration) {
	atomic.AddUint64(&m.successfulTrades, 1)
	m.LedgerLatency.RecordDuration(d)
	tradesTotal.WithLabelValues(asset, "success").Inc()
}

// RecordTradeFailure counts a failed attempt.
func (m *SystemMetrics) RecordTradeFailure(asset string, funding bool) {
	atomic.AddUint64(&m.failedTrades, 1)
	result := "failure"
	if funding {
		atomic.AddUint64(&m.fundingFailures, 1)
		result = "funding_failure"
	}
	tradesTotal.WithLabelValues(asset, result).Inc()
}

// ObserveRisk mirrors the risk gate's headline numbers.
func (m *SystemMetrics) ObserveRisk(killSwitch bool, consecutiveFailures int, dailyLoss float64) {
	v := 0.0
	if killSwitch {
		v = 1
	}
	killSwitchGauge.Set(v)
	consecutiveFailuresGauge.Set(float64(consecutiveFailures))
	dailyLossGauge.Set(dailyLoss)
}

// IncrementAPI counts a served API request.
func (m *SystemMetrics) IncrementAPI() { atomic.AddUint64(&m.apiRequests, 1) }

// IncrementAPIErrors counts an API response with status >= 400.
func (m *SystemMetrics) IncrementAPIErrors() { atomic.AddUint64(&m.apiErrors, 1) }

// MetricsSnapshot is a point-in-time view of loop performance.
type MetricsSnapshot struct {
	Uptime           string       `json:"uptime"`
	UptimeSeconds    float64      `json:"uptimeSeconds"`
	TotalCycles      uint64       `json:"totalCycles"`
	SuccessfulTrades uint64       `json:"successfulTrades"`
	FailedTrades     uint64       `json:"failedTrades"`
	FundingFailures  uint64       `json:"fundingFailures"`
	AvgCycleTimeMs   float64      `json:"avgCycleTimeMs"`
	CycleLatency     LatencyStats `json:"cycleLatency"`
	SignalLatency    LatencyStats `json:"signalLatency"`
	LedgerLatency    LatencyStats `json:"ledgerLatency"`
	APIRequests      uint64       `json:"apiRequests"`
	APIErrors        uint64       `json:"apiErrors"`
	GoroutineCount   int          `json:"goroutineCount"`
	HeapAlloc        uint64       `json:"heapAllocBytes"`
	Timestamp        time.Time    `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *SystemMetrics) GetSnapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	up := time.Since(m.startedAt)
	cycle := m.CycleLatency.Stats()
	return MetricsSnapshot{
		Uptime:           up.Truncate(time.Second).String(),
		UptimeSeconds:    up.Seconds(),
		TotalCycles:      atomic.LoadUint64(&m.totalCycles),
		SuccessfulTrades: atomic.LoadUint64(&m.successfulTrades),
		FailedTrades:     atomic.LoadUint64(&m.failedTrades),
		FundingFailures:  atomic.LoadUint64(&m.fundingFailures),
		AvgCycleTimeMs:   cycle.Avg,
		CycleLatency:     cycle,
		SignalLatency:    m.SignalLatency.Stats(),
		LedgerLatency:    m.LedgerLatency.Stats(),
		APIRequests:      atomic.LoadUint64(&m.apiRequests),
		APIErrors:        atomic.LoadUint64(&m.apiErrors),
		GoroutineCount:   runtime.NumGoroutine(),
		HeapAlloc:        memStats.HeapAlloc,
		Timestamp:        time.Now(),
	}
}

// Timer helps measure operation duration.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer creates a timer that records to the given histogram.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{
		start:     time.Now(),
		histogram: h,
	}
}

// Stop records elapsed time to histogram.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
