package indicators

import "math"

// RSI computes the Relative Strength Index over the last value of the series,
// using simple rolling averages of gains and losses across the final period.
// Returns 50 (neutral) when the series is too short to evaluate.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return 50.0
	}

	window := closes[len(closes)-period-1:]

	var gain, loss float64
	for i := 1; i < len(window); i++ {
		delta := window[i] - window[i-1]
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	gain /= float64(period)
	loss /= float64(period)

	if loss == 0 {
		if gain == 0 {
			return 50.0
		}
		return 100.0
	}

	rs := gain / loss
	return 100.0 - 100.0/(1.0+rs)
}

// EMA computes the exponential moving average of the series with smoothing
// 2/(period+1), seeded from the first value. Returns the last value of the
// series when there is not enough data.
func EMA(closes []float64, period int) float64 {
	if len(closes) == 0 {
		return 0
	}
	if period <= 0 || len(closes) < period {
		return closes[len(closes)-1]
	}

	alpha := 2.0 / (float64(period) + 1.0)
	ema := closes[0]
	for _, c := range closes[1:] {
		ema = alpha*c + (1-alpha)*ema
	}
	return ema
}

// SMA computes the simple moving average over the last period values.
func SMA(closes []float64, period int) float64 {
	if len(closes) == 0 {
		return 0
	}
	if period <= 0 || len(closes) < period {
		period = len(closes)
	}
	window := closes[len(closes)-period:]

	var sum float64
	for _, c := range window {
		sum += c
	}
	return sum / float64(len(window))
}

// BollingerBands returns the upper, middle and lower band at the end of the
// series (SMA ± stdDev standard deviations over the period). On a short series
// the bands collapse onto the last price.
func BollingerBands(closes []float64, period int, stdDev float64) (upper, middle, lower float64) {
	if len(closes) == 0 {
		return 0, 0, 0
	}
	if period <= 0 || len(closes) < period {
		last := closes[len(closes)-1]
		return last, last, last
	}

	middle = SMA(closes, period)

	window := closes[len(closes)-period:]
	var variance float64
	for _, c := range window {
		d := c - middle
		variance += d * d
	}
	// Sample standard deviation, matching the rolling std the indicators were
	// originally tuned against.
	sd := math.Sqrt(variance / float64(period-1))

	return middle + stdDev*sd, middle, middle - stdDev*sd
}
