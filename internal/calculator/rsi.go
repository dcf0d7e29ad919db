package calculator

import "math"

// WilderRSI computes the Wilder-smoothed RSI of the most recent close.
// It needs at least period+1 closes. A window without any price movement
// has no defined RSI and yields ok=false.
func WilderRSI(closes []float64, period int) (rsi float64, ok bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}

	// Initial average gain/loss over the first `period` changes
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	// Wilder smoothing for remaining closes
	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	switch {
	case avgGain == 0 && avgLoss == 0:
		return 0, false
	case avgLoss == 0:
		return 100, true
	}
	rs := avgGain / avgLoss
	rsi = 100.0 - 100.0/(1.0+rs)
	if math.IsNaN(rsi) {
		return 0, false
	}
	return rsi, true
}
