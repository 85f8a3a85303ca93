package indicator

import (
	"fmt"

	"github.com/arjunkv/paperdesk/internal/model"
)

// VWAP computes the cumulative volume-weighted average price over bars,
// typically reset per session by passing only the current day's bars.
func VWAP(bars []model.Bar) ([]float64, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("not enough data: need 1 bar, got 0")
	}

	out := nanSlice(len(bars))
	var cumPV, cumVol float64
	for i, b := range bars {
		typical := (b.High + b.Low + b.Close) / 3
		cumPV += typical * float64(b.Volume)
		cumVol += float64(b.Volume)
		if cumVol > 0 {
			out[i] = cumPV / cumVol
		}
	}
	return out, nil
}

// OBV computes on-balance volume.
func OBV(bars []model.Bar) ([]float64, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("not enough data: need 1 bar, got 0")
	}

	out := make([]float64, len(bars))
	for i := 1; i < len(bars); i++ {
		switch {
		case bars[i].Close > bars[i-1].Close:
			out[i] = out[i-1] + float64(bars[i].Volume)
		case bars[i].Close < bars[i-1].Close:
			out[i] = out[i-1] - float64(bars[i].Volume)
		default:
			out[i] = out[i-1]
		}
	}
	return out, nil
}
