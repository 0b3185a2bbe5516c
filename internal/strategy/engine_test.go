package strategy

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// oversoldSeries rises to 105 then falls fourteen times in a row.
func oversoldSeries() []float64 {
	out := []float64{100, 101, 102, 103, 104, 105}
	for p := 104.0; p >= 91; p-- {
		out = append(out, p)
	}
	return out
}

func linear(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func TestEvaluateRequiresMinimumHistory(t *testing.T) {
	e := NewEngine(DefaultSet())
	short := oversoldSeries()[:MinHistory-1]

	for _, id := range []int{1, 2, 3, 99} {
		res := e.Evaluate(id, short, "WETH")
		assert.Equal(t, Hold, res.Signal, "strategy %d", id)
		assert.Zero(t, res.Confidence, "strategy %d", id)
	}
}

func TestEvaluateFallsBackOnceToDefault(t *testing.T) {
	set := DefaultSet()
	set.Strategies[1].Enabled = false
	e := NewEngine(set)

	t.Run("unknown id uses default", func(t *testing.T) {
		res := e.Evaluate(42, oversoldSeries(), "WETH")
		assert.Equal(t, 1, res.StrategyID)
		assert.Equal(t, Buy, res.Signal)
	})

	t.Run("disabled id uses default", func(t *testing.T) {
		res := e.Evaluate(2, oversoldSeries(), "WETH")
		assert.Equal(t, 1, res.StrategyID)
	})

	t.Run("invalid default holds", func(t *testing.T) {
		bad := DefaultSet()
		bad.DefaultStrategy = 7
		res := NewEngine(bad).Evaluate(9, oversoldSeries(), "WETH")
		assert.Equal(t, Hold, res.Signal)
		assert.Equal(t, "unknown strategy", res.Reason)
		assert.Zero(t, res.Confidence)
	})
}

func TestRSISMA(t *testing.T) {
	e := NewEngine(DefaultSet())

	t.Run("oversold buys", func(t *testing.T) {
		res := e.Evaluate(1, oversoldSeries(), "WETH")
		assert.Equal(t, Buy, res.Signal)
		assert.Equal(t, 0.85, res.Confidence)
		assert.Equal(t, "RSI + SMA Crossover", res.StrategyName)
		assert.Equal(t, 0.0, res.Indicators["rsi"])
	})

	t.Run("overbought sells", func(t *testing.T) {
		res := e.Evaluate(1, linear(20, 100, 1), "WETH")
		assert.Equal(t, Sell, res.Signal)
		assert.Equal(t, 0.85, res.Confidence)
	})

	t.Run("crossover with momentum buys", func(t *testing.T) {
		prices := linear(19, 100, 1)
		prices[10] = 108 // one loss keeps RSI at 93.75
		params := Params{"rsi_oversold": 5, "rsi_overbought": 95, "momentum_threshold": 0.5}
		res := RSISMA(prices, params)
		assert.Equal(t, Buy, res.Signal)
		assert.Equal(t, 0.75, res.Confidence)
		assert.InDelta(t, 93.75, res.Indicators["rsi"], 1e-9)
	})

	t.Run("flat holds", func(t *testing.T) {
		prices := linear(20, 100, 0)
		res := RSISMA(prices, Params{"rsi_overbought": 101})
		assert.Equal(t, Hold, res.Signal)
		assert.Zero(t, res.Confidence)
	})
}

func TestBollinger(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		want   Signal
		conf   float64
	}{
		{"flat band is neutral", linear(20, 100, 0), Hold, 0},
		{"drop below lower band", append(linear(19, 100, 0), 90), Buy, 0.80},
		{"spike above upper band", append(linear(19, 100, 0), 110), Sell, 0.80},
		{"too short for period", linear(16, 100, 0), Hold, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Bollinger(tt.prices, Params{})
			assert.Equal(t, tt.want, res.Signal)
			assert.Equal(t, tt.conf, res.Confidence)
		})
	}
}

func TestMACD(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		want   Signal
	}{
		{"uptrend", linear(35, 100, 2), Buy},
		{"downtrend", linear(35, 200, -2), Sell},
		{"flat", linear(35, 100, 0), Hold},
		{"needs slow+signal points", linear(34, 100, 2), Hold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := MACD(tt.prices, Params{})
			assert.Equal(t, tt.want, res.Signal)
		})
	}
	assert.Equal(t, 0.78, MACD(linear(35, 100, 2), Params{}).Confidence)
}

func TestEvaluateRecoversFromPanics(t *testing.T) {
	set := Set{DefaultStrategy: 1, Strategies: []Definition{{ID: 1, Name: "boom", Type: "boom", Enabled: true}}}
	e := NewEngine(set)
	e.Register("boom", func([]float64, Params) SignalResult { panic("division by zero") })

	res := e.Evaluate(1, oversoldSeries(), "WETH")
	assert.Equal(t, Hold, res.Signal)
	assert.Contains(t, res.Reason, "division by zero")
}

func TestEngineIsASource(t *testing.T) {
	var src Source = NewEngine(DefaultSet())
	res, err := src.Signal(context.Background(), 1, "WETH", oversoldSeries())
	require.NoError(t, err)
	assert.Equal(t, Buy, res.Signal)
}

func TestParamsLookup(t *testing.T) {
	p := Params{"momentum_threshold": 0, "rsi_period": 7, "bad": math.NaN(), "negative_period": -3}

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"configured zero is kept", p.Float("momentum_threshold", 0.5), 0},
		{"missing uses default", p.Float("rsi_oversold", 30), 30},
		{"NaN uses default", p.Float("bad", 2), 2},
		{"period", float64(p.Int("rsi_period", 14)), 7},
		{"missing period", float64(p.Int("sma_fast", 5)), 5},
		{"non-positive period", float64(p.Int("negative_period", 10)), 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}
