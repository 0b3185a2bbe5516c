package strategy

import (
	"fmt"

	"sentinel-core/internal/indicators"
)

// MACD follows the fast/slow EMA spread, normalised to percent of price.
func MACD(prices []float64, p Params) SignalResult {
	fast := p.Int("fast_ema", 12)
	slow := p.Int("slow_ema", 26)
	signal := p.Int("signal_line", 9)
	threshold := p.Float("histogram_threshold", 0.5)

	if len(prices) < slow+signal {
		return HoldResult(0, "insufficient data for MACD")
	}

	fastEMA := indicators.EMA(prices, fast)
	slowEMA := indicators.EMA(prices, slow)
	macdLine := fastEMA - slowEMA
	price := prices[len(prices)-1]

	histogram := 0.0
	if price != 0 {
		histogram = macdLine / price * 100
	}

	res := SignalResult{
		Signal: Hold,
		Reason: fmt.Sprintf("MACD neutral: %.2f%%", histogram),
		Indicators: map[string]float64{
			"fastEMA":   fastEMA,
			"slowEMA":   slowEMA,
			"macdLine":  macdLine,
			"histogram": histogram,
		},
	}

	switch {
	case histogram > threshold:
		res.Signal, res.Confidence = Buy, 0.78
		res.Reason = fmt.Sprintf("Bullish MACD histogram: %.2f%%", histogram)
	case histogram < -threshold:
		res.Signal, res.Confidence = Sell, 0.78
		res.Reason = fmt.Sprintf("Bearish MACD histogram: %.2f%%", histogram)
	}
	return res
}
