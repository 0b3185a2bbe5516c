package indicators

import "math"

// StdDev is the population standard deviation of the last period values.
func StdDev(values []float64, period int) float64 {
	window := tail(values, period)
	if len(window) == 0 {
		return 0
	}
	mean := SMA(window, len(window))
	sq := 0.0
	for _, v := range window {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(window)))
}

// Momentum returns last - values[len-period], or 0 without enough history.
func Momentum(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	return values[len(values)-1] - values[len(values)-period]
}
