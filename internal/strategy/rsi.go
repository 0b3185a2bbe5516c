package strategy

import (
	"fmt"

	"sentinel-core/internal/indicators"
)

// RSISMA trades RSI extremes first, then an SMA crossover confirmed by
// short-term momentum.
func RSISMA(prices []float64, p Params) SignalResult {
	rsi := indicators.RSI(prices, p.Int("rsi_period", 14))
	smaFast := indicators.SMA(prices, p.Int("sma_fast", 5))
	smaSlow := indicators.SMA(prices, p.Int("sma_slow", 10))
	momentum := indicators.Momentum(prices, 3)

	price := prices[len(prices)-1]
	momentumPct := 0.0
	if price != 0 {
		momentumPct = momentum / price * 100
	}

	oversold := p.Float("rsi_oversold", 30)
	overbought := p.Float("rsi_overbought", 70)
	threshold := p.Float("momentum_threshold", 0.5)

	res := SignalResult{
		Signal: Hold,
		Reason: "No clear signal",
		Indicators: map[string]float64{
			"rsi":             rsi,
			"smaFast":         smaFast,
			"smaSlow":         smaSlow,
			"momentumPercent": momentumPct,
		},
	}

	switch {
	case rsi < oversold:
		res.Signal, res.Confidence = Buy, 0.85
		res.Reason = fmt.Sprintf("RSI oversold: %.2f", rsi)
	case rsi > overbought:
		res.Signal, res.Confidence = Sell, 0.85
		res.Reason = fmt.Sprintf("RSI overbought: %.2f", rsi)
	case smaFast > smaSlow && momentumPct > threshold:
		res.Signal, res.Confidence = Buy, 0.75
		res.Reason = fmt.Sprintf("Bullish SMA crossover + momentum: %.2f%%", momentumPct)
	case smaFast < smaSlow && momentumPct < -threshold:
		res.Signal, res.Confidence = Sell, 0.75
		res.Reason = fmt.Sprintf("Bearish SMA crossover + momentum: %.2f%%", momentumPct)
	}
	return res
}
