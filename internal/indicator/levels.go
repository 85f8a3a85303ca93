package indicator

import (
	"fmt"

	"github.com/arjunkv/paperdesk/internal/model"
)

// Pivots holds classic floor-trader pivot levels computed from the previous
// session's high, low and close.
type Pivots struct {
	Pivot float64 `json:"pivot"`
	R1    float64 `json:"r1"`
	R2    float64 `json:"r2"`
	R3    float64 `json:"r3"`
	S1    float64 `json:"s1"`
	S2    float64 `json:"s2"`
	S3    float64 `json:"s3"`
}

// PivotPoints computes classic pivot levels.
func PivotPoints(high, low, close float64) Pivots {
	p := (high + low + close) / 3
	return Pivots{
		Pivot: p,
		R1:    2*p - low,
		R2:    p + (high - low),
		R3:    high + 2*(p-low),
		S1:    2*p - high,
		S2:    p - (high - low),
		S3:    low - 2*(high-low),
	}
}

// Range is the high and low of a set of bars, used for opening range
// breakout strategies.
type Range struct {
	High float64 `json:"high"`
	Low  float64 `json:"low"`
}

// OpeningRange returns the high/low of the first n bars of a session.
func OpeningRange(bars []model.Bar, n int) (Range, error) {
	if n < 1 || len(bars) < n {
		return Range{}, fmt.Errorf("not enough data: need %d bars, got %d", n, len(bars))
	}

	r := Range{High: bars[0].High, Low: bars[0].Low}
	for _, b := range bars[1:n] {
		if b.High > r.High {
			r.High = b.High
		}
		if b.Low < r.Low {
			r.Low = b.Low
		}
	}
	return r, nil
}

// Breakout reports whether price breaks the range: +1 above, -1 below, 0
// inside.
func (r Range) Breakout(price float64) int {
	switch {
	case price > r.High:
		return 1
	case price < r.Low:
		return -1
	default:
		return 0
	}
}
