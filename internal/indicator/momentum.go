package indicator

import (
	"math"

	"github.com/arjunkv/paperdesk/internal/model"
)

// RSI computes the relative strength index using Wilder's smoothing.
func RSI(values []float64, period int) ([]float64, error) {
	if err := checkPeriod(len(values), period+1); err != nil {
		return nil, err
	}

	out := nanSlice(len(values))

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(values); i++ {
		delta := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACD computes the MACD line, signal line and histogram.
func MACD(values []float64, fast, slow, signal int) (macd, sig, hist []float64, err error) {
	if fast >= slow {
		fast, slow = slow, fast
	}
	if err := checkPeriod(len(values), slow+signal); err != nil {
		return nil, nil, nil, err
	}

	fastEMA, err := EMA(values, fast)
	if err != nil {
		return nil, nil, nil, err
	}
	slowEMA, err := EMA(values, slow)
	if err != nil {
		return nil, nil, nil, err
	}

	n := len(values)
	macd = nanSlice(n)
	for i := slow - 1; i < n; i++ {
		macd[i] = fastEMA[i] - slowEMA[i]
	}

	// Signal is an EMA of the MACD line, starting where MACD is defined.
	sigTail, err := EMA(macd[slow-1:], signal)
	if err != nil {
		return nil, nil, nil, err
	}
	sig = nanSlice(n)
	copy(sig[slow-1:], sigTail)

	hist = nanSlice(n)
	for i := range hist {
		if !math.IsNaN(macd[i]) && !math.IsNaN(sig[i]) {
			hist[i] = macd[i] - sig[i]
		}
	}
	return macd, sig, hist, nil
}

// Stochastic computes the %K and %D lines of the stochastic oscillator.
func Stochastic(bars []model.Bar, kPeriod, dPeriod int) (k, d []float64, err error) {
	if err := checkPeriod(len(bars), kPeriod+dPeriod-1); err != nil {
		return nil, nil, err
	}

	n := len(bars)
	k = nanSlice(n)
	for i := kPeriod - 1; i < n; i++ {
		hi, lo := bars[i].High, bars[i].Low
		for j := i - kPeriod + 1; j < i; j++ {
			hi = math.Max(hi, bars[j].High)
			lo = math.Min(lo, bars[j].Low)
		}
		if hi == lo {
			k[i] = 50
		} else {
			k[i] = 100 * (bars[i].Close - lo) / (hi - lo)
		}
	}

	dTail, err := SMA(k[kPeriod-1:], dPeriod)
	if err != nil {
		return nil, nil, err
	}
	d = nanSlice(n)
	copy(d[kPeriod-1:], dTail)
	return k, d, nil
}

// ROC computes the rate of change over period bars, in percent.
func ROC(values []float64, period int) ([]float64, error) {
	if err := checkPeriod(len(values), period+1); err != nil {
		return nil, err
	}

	out := nanSlice(len(values))
	for i := period; i < len(values); i++ {
		if values[i-period] != 0 {
			out[i] = 100 * (values[i] - values[i-period]) / values[i-period]
		}
	}
	return out, nil
}
