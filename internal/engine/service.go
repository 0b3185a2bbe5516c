package engine

import (
	"context"
	"time"

	"sentinel-core/internal/monitor"
	"sentinel-core/internal/performance"
	"sentinel-core/internal/risk"
	"sentinel-core/internal/strategy"
)

// Service is what the status surface may see of the engine. Everything but
// the kill switch controls is read-only.
type Service interface {
	RiskStatus() risk.Status
	RecentTrades(limit int) []TradeRecord
	Assets() []AssetSnapshot
	Strategies() []StrategyInfo
	Performance() performance.Summary
	Metrics() monitor.MetricsSnapshot
	SystemStatus() SystemStatus

	ResetKillSwitch(ctx context.Context)
	ActivateKillSwitch(ctx context.Context, reason string)
}

// StrategyInfo is a strategy definition with its live aggregate.
type StrategyInfo struct {
	strategy.Definition
	WinRate     float64 `json:"winRate"`
	TotalPnL    float64 `json:"totalPnL"`
	TradesCount int     `json:"tradesCount"`
}

// SystemStatus represents the system runtime status.
type SystemStatus struct {
	AutoTrading bool      `json:"autoTrading"`
	KillSwitch  bool      `json:"killSwitch"`
	TraderID    string    `json:"traderId"`
	Assets      []string  `json:"assets"`
	ServerTime  time.Time `json:"serverTime"`
}

var _ Service = (*Orchestrator)(nil)

func (o *Orchestrator) RiskStatus() risk.Status { return o.gate.Status() }

func (o *Orchestrator) RecentTrades(limit int) []TradeRecord { return o.trades.Recent(limit) }

// Assets snapshots every enabled asset in rotation order.
func (o *Orchestrator) Assets() []AssetSnapshot {
	out := make([]AssetSnapshot, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.assets[id].Snapshot())
	}
	return out
}

// Strategies joins the loaded definitions with per-strategy trade stats.
func (o *Orchestrator) Strategies() []StrategyInfo {
	stats := make(map[int]performance.StrategyStats)
	for _, s := range performance.ByStrategy(o.trades.Results()) {
		stats[s.StrategyID] = s
	}
	defs := o.strategies.Definitions()
	out := make([]StrategyInfo, 0, len(defs))
	for _, d := range defs {
		s := stats[d.ID]
		out = append(out, StrategyInfo{Definition: d, WinRate: s.WinRate, TotalPnL: s.TotalPnL, TradesCount: s.TradesCount})
	}
	return out
}

// Performance summarises the recorded trades oldest first.
func (o *Orchestrator) Performance() performance.Summary {
	results := o.trades.Results()
	pnls := make([]float64, len(results))
	for i, r := range results {
		pnls[i] = r.PnL
	}
	return performance.Summarize(pnls)
}

func (o *Orchestrator) Metrics() monitor.MetricsSnapshot { return o.metrics.GetSnapshot() }

func (o *Orchestrator) SystemStatus() SystemStatus {
	return SystemStatus{
		AutoTrading: o.cfg.AutoTrading,
		KillSwitch:  o.gate.Status().KillSwitchActive,
		TraderID:    o.cfg.TraderID,
		Assets:      o.AssetIDs(),
		ServerTime:  o.now().UTC(),
	}
}

func (o *Orchestrator) ResetKillSwitch(ctx context.Context) { o.gate.ResetKillSwitch(ctx) }

func (o *Orchestrator) ActivateKillSwitch(ctx context.Context, reason string) {
	o.gate.ActivateKillSwitch(ctx, reason)
}
