package indicator

import (
	"math"

	"github.com/arjunkv/paperdesk/internal/model"
)

// ATR computes the average true range using Wilder's smoothing. The first
// value appears at index period, the earliest bar only seeds the true range.
func ATR(bars []model.Bar, period int) ([]float64, error) {
	if err := checkPeriod(len(bars), period+1); err != nil {
		return nil, err
	}

	out := nanSlice(len(bars))

	var sum float64
	for i := 1; i <= period; i++ {
		sum += trueRange(bars[i], bars[i-1].Close)
	}
	out[period] = sum / float64(period)

	for i := period + 1; i < len(bars); i++ {
		tr := trueRange(bars[i], bars[i-1].Close)
		out[i] = (out[i-1]*float64(period-1) + tr) / float64(period)
	}
	return out, nil
}

func trueRange(b model.Bar, prevClose float64) float64 {
	tr := b.High - b.Low
	tr = math.Max(tr, math.Abs(b.High-prevClose))
	return math.Max(tr, math.Abs(b.Low-prevClose))
}

// Bollinger computes Bollinger bands: an SMA middle band with upper and
// lower bands stdDev standard deviations away.
func Bollinger(values []float64, period int, stdDev float64) (upper, middle, lower []float64, err error) {
	middle, err = SMA(values, period)
	if err != nil {
		return nil, nil, nil, err
	}

	n := len(values)
	upper = nanSlice(n)
	lower = nanSlice(n)
	for i := period - 1; i < n; i++ {
		var variance float64
		for j := i - period + 1; j <= i; j++ {
			d := values[j] - middle[i]
			variance += d * d
		}
		sd := math.Sqrt(variance / float64(period))
		upper[i] = middle[i] + stdDev*sd
		lower[i] = middle[i] - stdDev*sd
	}
	return upper, middle, lower, nil
}

// Bandwidth computes Bollinger bandwidth, (upper-lower)/middle, a squeeze
// measure.
func Bandwidth(values []float64, period int, stdDev float64) ([]float64, error) {
	upper, middle, lower, err := Bollinger(values, period, stdDev)
	if err != nil {
		return nil, err
	}

	out := nanSlice(len(values))
	for i := range out {
		if !math.IsNaN(middle[i]) && middle[i] != 0 {
			out[i] = (upper[i] - lower[i]) / middle[i]
		}
	}
	return out, nil
}
