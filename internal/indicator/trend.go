package indicator

import (
	"fmt"
	"math"

	"github.com/arjunkv/paperdesk/internal/model"
)

// SMA computes the simple moving average.
func SMA(values []float64, period int) ([]float64, error) {
	if err := checkPeriod(len(values), period); err != nil {
		return nil, err
	}

	out := nanSlice(len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out, nil
}

// EMA computes the exponential moving average, seeded with the SMA of the
// first period values.
func EMA(values []float64, period int) ([]float64, error) {
	if err := checkPeriod(len(values), period); err != nil {
		return nil, err
	}

	out := nanSlice(len(values))
	mult := 2.0 / (float64(period) + 1.0)

	var sum float64
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	out[period-1] = sum / float64(period)

	for i := period; i < len(values); i++ {
		out[i] = (values[i]-out[i-1])*mult + out[i-1]
	}
	return out, nil
}

// Supertrend computes the supertrend line and its direction over bars.
// Direction is +1 while price rides above the line (bullish) and -1 below.
func Supertrend(bars []model.Bar, period int, multiplier float64) (line []float64, direction []int, err error) {
	if err := checkPeriod(len(bars), period+1); err != nil {
		return nil, nil, err
	}

	atr, err := ATR(bars, period)
	if err != nil {
		return nil, nil, err
	}

	n := len(bars)
	upper := nanSlice(n)
	lower := nanSlice(n)
	line = nanSlice(n)
	direction = make([]int, n)

	for i := period; i < n; i++ {
		hl2 := (bars[i].High + bars[i].Low) / 2
		basicUpper := hl2 + multiplier*atr[i]
		basicLower := hl2 - multiplier*atr[i]

		// Band ratcheting: bands only tighten while price stays inside.
		if i == period || basicLower > lower[i-1] || bars[i-1].Close < lower[i-1] {
			lower[i] = basicLower
		} else {
			lower[i] = lower[i-1]
		}
		if i == period || basicUpper < upper[i-1] || bars[i-1].Close > upper[i-1] {
			upper[i] = basicUpper
		} else {
			upper[i] = upper[i-1]
		}

		if i == period {
			if bars[i].Close <= upper[i] {
				direction[i] = -1
			} else {
				direction[i] = 1
			}
		} else {
			switch {
			case direction[i-1] == -1 && bars[i].Close > upper[i]:
				direction[i] = 1
			case direction[i-1] == 1 && bars[i].Close < lower[i]:
				direction[i] = -1
			default:
				direction[i] = direction[i-1]
			}
		}

		if direction[i] == 1 {
			line[i] = lower[i]
		} else {
			line[i] = upper[i]
		}
	}
	return line, direction, nil
}

// Closes extracts close prices from bars.
func Closes(bars []model.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func checkPeriod(n, period int) error {
	if period < 1 {
		return fmt.Errorf("period must be >= 1, got %d", period)
	}
	if n < period {
		return fmt.Errorf("not enough data: need %d values, got %d", period, n)
	}
	return nil
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
