package indicators

// SMA calculates the simple moving average of the last period values.
// With fewer than period values it averages everything available; an empty
// series yields 0.
func SMA(values []float64, period int) float64 {
	window := tail(values, period)
	if len(window) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range window {
		sum += v
	}
	return sum / float64(len(window))
}

// EMA seeds with the SMA of the first period values and then applies
// ema = price*k + ema*(1-k) with k = 2/(period+1) over the remainder.
// Short series fall back to the SMA of all values.
func EMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return SMA(values, len(values))
	}
	k := 2.0 / float64(period+1)
	ema := SMA(values[:period], period)
	for _, v := range values[period:] {
		ema = v*k + ema*(1-k)
	}
	return ema
}

// tail returns the last n values, or all of them when n is out of range.
func tail(values []float64, n int) []float64 {
	if n <= 0 || n >= len(values) {
		return values
	}
	return values[len(values)-n:]
}
