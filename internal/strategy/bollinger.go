package strategy

import (
	"fmt"

	"sentinel-core/internal/indicators"
)

// Bollinger buys near the lower band and sells near the upper band.
// breakout_threshold/2 is the distance from either band, as a fraction of
// band width, that counts as a touch.
func Bollinger(prices []float64, p Params) SignalResult {
	period := p.Int("period", 20)
	mult := p.Float("std_dev_multiplier", 2.0)
	threshold := p.Float("breakout_threshold", 0.8)

	if len(prices) < period {
		return HoldResult(0, "insufficient data for Bollinger Bands")
	}

	sma := indicators.SMA(prices, period)
	sd := indicators.StdDev(prices, period)
	upper := sma + sd*mult
	lower := sma - sd*mult
	price := prices[len(prices)-1]

	position := 0.5 // flat band
	if width := upper - lower; width != 0 {
		position = (price - lower) / width
	}

	res := SignalResult{
		Signal: Hold,
		Reason: fmt.Sprintf("Price within bands (%.0f%%)", position*100),
		Indicators: map[string]float64{
			"upperBand":      upper,
			"lowerBand":      lower,
			"sma":            sma,
			"currentPrice":   price,
			"positionInBand": position,
		},
	}

	switch {
	case position <= threshold*0.5:
		res.Signal, res.Confidence = Buy, 0.80
		res.Reason = fmt.Sprintf("Price near lower Bollinger Band: %.2f vs %.2f", price, lower)
	case position >= 1-threshold*0.5:
		res.Signal, res.Confidence = Sell, 0.80
		res.Reason = fmt.Sprintf("Price near upper Bollinger Band: %.2f vs %.2f", price, upper)
	}
	return res
}
