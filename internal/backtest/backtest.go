// Package backtest replays historical prices through the strategy engine
// with a long-only position model.
package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"sentinel-core/internal/indicators"
	"sentinel-core/internal/performance"
	"sentinel-core/internal/strategy"
)

// Evaluator is the strategy engine's pure entry point.
type Evaluator interface {
	Evaluate(strategyID int, prices []float64, assetID string) strategy.SignalResult
}

// Options tune a run. Zero values take the defaults.
type Options struct {
	InitialBalance float64 `json:"initialBalance"`
	TradeAmount    float64 `json:"tradeAmount"`
	Slippage       float64 `json:"slippage"`
	Fee            float64 `json:"fee"`
	Window         int     `json:"window"`
	WarmUp         int     `json:"warmUp"`
}

func (o *Options) applyDefaults() {
	if o.InitialBalance <= 0 {
		o.InitialBalance = 10000
	}
	if o.TradeAmount <= 0 {
		o.TradeAmount = 100
	}
	if o.Slippage <= 0 {
		o.Slippage = 0.001
	}
	if o.Fee <= 0 {
		o.Fee = 0.003
	}
	if o.Window <= 0 {
		o.Window = 100
	}
	if o.WarmUp <= 0 {
		o.WarmUp = 30
	}
}

// Trade types.
const (
	OpenLong   = "OPEN_LONG"
	CloseLong  = "CLOSE_LONG"
	ForceClose = "FORCE_CLOSE"
)

// Trade is one simulated fill.
type Trade struct {
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	Price         float64   `json:"price"`
	Amount        float64   `json:"amount"`
	Balance       float64   `json:"balance"`
	Profit        float64   `json:"profit,omitempty"`
	ProfitPercent float64   `json:"profitPercent,omitempty"`
	Reason        string    `json:"reason"`
}

// Metrics summarises a run.
type Metrics struct {
	TotalTrades     int     `json:"totalTrades"`
	CompletedTrades int     `json:"completedTrades"`
	Wins            int     `json:"wins"`
	Losses          int     `json:"losses"`
	WinRate         float64 `json:"winRate"`
	TotalProfit     float64 `json:"totalProfit"`
	AvgProfit       float64 `json:"avgProfit"`
	MaxDrawdown     float64 `json:"maxDrawdown"`
	SharpeRatio     float64 `json:"sharpeRatio"`
}

// Result is the full outcome of a run.
type Result struct {
	StrategyID     int       `json:"strategyId"`
	StartDate      time.Time `json:"startDate"`
	EndDate        time.Time `json:"endDate"`
	InitialBalance float64   `json:"initialBalance"`
	FinalBalance   float64   `json:"finalBalance"`
	TotalReturn    float64   `json:"totalReturn"`
	Trades         []Trade   `json:"trades"`
	Metrics        Metrics   `json:"metrics"`
}

// Run replays data for one strategy. Only ctx cancellation and empty data
// are errors.
func Run(ctx context.Context, ev Evaluator, strategyID int, data []Point, opts Options) (Result, error) {
	if len(data) == 0 {
		return Result{}, errors.New("backtest: no data")
	}
	opts.applyDefaults()

	balance := opts.InitialBalance
	window := indicators.NewWindow(opts.Window)
	var trades []Trade
	var entryPrice float64
	open := false

	for i, pt := range data {
		if i%1000 == 0 && ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if window.Push(pt.Price) < opts.WarmUp {
			continue
		}

		sig := ev.Evaluate(strategyID, window.Values(), "BACKTEST")
		switch {
		case sig.Signal == strategy.Buy && !open:
			cost := opts.TradeAmount * (1 + opts.Fee)
			if balance < cost {
				continue
			}
			balance -= cost
			trades = append(trades, Trade{
				Type:      OpenLong,
				Timestamp: pt.Timestamp,
				Price:     pt.Price * (1 + opts.Slippage),
				Amount:    opts.TradeAmount,
				Balance:   balance,
				Reason:    sig.Reason,
			})
			entryPrice, open = trades[len(trades)-1].Price, true
		case sig.Signal == strategy.Sell && open:
			t := closeLong(CloseLong, pt, pt.Price*(1-opts.Slippage), entryPrice, opts, &balance)
			t.Reason = sig.Reason
			trades = append(trades, t)
			open = false
		}
	}

	last := data[len(data)-1]
	if open {
		t := closeLong(ForceClose, last, last.Price, entryPrice, opts, &balance)
		t.Reason = "End of backtest period"
		trades = append(trades, t)
	}

	res := Result{
		StrategyID:     strategyID,
		StartDate:      data[0].Timestamp,
		EndDate:        last.Timestamp,
		InitialBalance: opts.InitialBalance,
		FinalBalance:   balance,
		TotalReturn:    (balance - opts.InitialBalance) / opts.InitialBalance * 100,
		Trades:         trades,
		Metrics:        computeMetrics(trades, opts.InitialBalance),
	}
	log.Info().Int("strategy", strategyID).Int("points", len(data)).
		Int("trades", len(trades)).Float64("return_pct", res.TotalReturn).Msg("backtest complete")
	return res, nil
}

func closeLong(kind string, pt Point, exit, entryPrice float64, opts Options, balance *float64) Trade {
	proceeds := opts.TradeAmount * (exit / entryPrice)
	net := proceeds * (1 - opts.Fee)
	*balance += net
	profit := net - opts.TradeAmount
	return Trade{
		Type:          kind,
		Timestamp:     pt.Timestamp,
		Price:         exit,
		Amount:        opts.TradeAmount,
		Balance:       *balance,
		Profit:        profit,
		ProfitPercent: profit / opts.TradeAmount * 100,
	}
}

func computeMetrics(trades []Trade, initial float64) Metrics {
	m := Metrics{TotalTrades: len(trades)}
	var returns []float64
	for _, t := range trades {
		if t.Type == OpenLong {
			continue
		}
		m.CompletedTrades++
		if t.Profit > 0 {
			m.Wins++
		} else {
			m.Losses++
		}
		m.TotalProfit += t.Profit
		returns = append(returns, t.ProfitPercent)
	}
	if m.CompletedTrades > 0 {
		m.WinRate = float64(m.Wins) / float64(m.CompletedTrades) * 100
		m.AvgProfit = m.TotalProfit / float64(m.CompletedTrades)
	}

	peak := initial
	for _, t := range trades {
		if t.Balance > peak {
			peak = t.Balance
		}
		if dd := (peak - t.Balance) / peak * 100; dd > m.MaxDrawdown {
			m.MaxDrawdown = dd
		}
	}
	m.SharpeRatio = performance.Sharpe(returns)
	return m
}

// Export writes res as indented JSON into dir and returns the file path.
func Export(res Result, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("backtest_strategy_%d_%d.json", res.StrategyID, time.Now().UnixMilli())
	path := filepath.Join(dir, name)
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
