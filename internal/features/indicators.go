package features

import "math"

// MovingAverage returns the trailing simple moving average of values over
// window rows. Entry i is NaN until i >= window-1, and whenever the window
// contains a missing value.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	var sum float64
	missing := 0
	for i, v := range values {
		if math.IsNaN(v) {
			missing++
		} else {
			sum += v
		}
		if i >= window {
			old := values[i-window]
			if math.IsNaN(old) {
				missing--
			} else {
				sum -= old
			}
		}
		if i < window-1 || missing > 0 || window <= 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(window)
	}
	return out
}

// Ratio divides element-wise. A zero or missing denominator, or a missing
// numerator, yields NaN; zeroDiv counts the zero-denominator cases.
func Ratio(num, den []float64) (out []float64, zeroDiv int) {
	out = make([]float64, len(num))
	for i := range num {
		switch {
		case math.IsNaN(num[i]) || math.IsNaN(den[i]):
			out[i] = math.NaN()
		case den[i] == 0:
			out[i] = math.NaN()
			zeroDiv++
		default:
			out[i] = num[i] / den[i]
		}
	}
	return out, zeroDiv
}
