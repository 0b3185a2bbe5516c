// Package performance aggregates realised trade results into headline
// statistics for the status surface and backtests.
package performance

import (
	"math"
	"sort"
)

// Summary is the aggregate over a sequence of trade results.
type Summary struct {
	TotalTrades   int     `json:"totalTrades"`
	WinningTrades int     `json:"winningTrades"`
	LosingTrades  int     `json:"losingTrades"`
	TotalPnL      float64 `json:"totalPnL"`
	WinRate       float64 `json:"winRate"`
	MaxDrawdown   float64 `json:"maxDrawdown"`
	SharpeRatio   float64 `json:"sharpeRatio"`
}

// tradingDays annualises the per-trade Sharpe ratio.
const tradingDays = 252

// Summarize computes win rate in percent, the peak-relative drawdown of the
// cumulative PnL curve and an annualised Sharpe ratio. Trades with zero PnL
// are neither wins nor losses.
func Summarize(pnls []float64) Summary {
	s := Summary{TotalTrades: len(pnls)}
	if len(pnls) == 0 {
		return s
	}

	var peak, cumulative float64
	for _, p := range pnls {
		s.TotalPnL += p
		switch {
		case p > 0:
			s.WinningTrades++
		case p < 0:
			s.LosingTrades++
		}

		cumulative += p
		if cumulative > peak {
			peak = cumulative
		}
		// A peak below one unit would inflate the percentage.
		if dd := (peak - cumulative) / math.Max(peak, 1) * 100; dd > s.MaxDrawdown {
			s.MaxDrawdown = dd
		}
	}
	s.WinRate = float64(s.WinningTrades) / float64(len(pnls)) * 100

	mean, std := meanStd(pnls)
	if std > 0 {
		s.SharpeRatio = mean / std * math.Sqrt(tradingDays)
	}
	return s
}

// meanStd returns the mean and population standard deviation.
func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(variance / float64(len(values)))
}

// Sharpe is the plain mean/std ratio used for per-trade returns.
func Sharpe(returns []float64) float64 {
	mean, std := meanStd(returns)
	if std == 0 {
		return 0
	}
	return mean / std
}

// Result is one realised trade attributed to a strategy.
type Result struct {
	StrategyID int
	PnL        float64
}

// StrategyStats is the per-strategy aggregate.
type StrategyStats struct {
	StrategyID  int     `json:"strategyId"`
	TradesCount int     `json:"tradesCount"`
	TotalPnL    float64 `json:"totalPnL"`
	WinRate     float64 `json:"winRate"`
}

// ByStrategy groups results by strategy id, ordered by id.
func ByStrategy(results []Result) []StrategyStats {
	idx := make(map[int]*StrategyStats)
	wins := make(map[int]int)
	for _, r := range results {
		st, ok := idx[r.StrategyID]
		if !ok {
			st = &StrategyStats{StrategyID: r.StrategyID}
			idx[r.StrategyID] = st
		}
		st.TradesCount++
		st.TotalPnL += r.PnL
		if r.PnL > 0 {
			wins[r.StrategyID]++
		}
	}

	out := make([]StrategyStats, 0, len(idx))
	for id, st := range idx {
		st.WinRate = float64(wins[id]) / float64(st.TradesCount) * 100
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StrategyID < out[j].StrategyID })
	return out
}
