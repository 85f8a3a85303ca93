package indicator

import (
	"math"
	"testing"

	"github.com/arjunkv/paperdesk/internal/model"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func barsFromOHLC(rows [][4]float64, volume int64) []model.Bar {
	bars := make([]model.Bar, len(rows))
	for i, r := range rows {
		bars[i] = model.Bar{Open: r[0], High: r[1], Low: r[2], Close: r[3], Volume: volume}
	}
	return bars
}

func TestSMA(t *testing.T) {
	out, err := SMA([]float64{1, 2, 3, 4, 5}, 3)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if !math.IsNaN(out[i]) {
			t.Errorf("out[%d] = %v, want NaN warmup", i, out[i])
		}
	}
	want := []float64{2, 3, 4}
	for i, w := range want {
		if !almostEqual(out[i+2], w) {
			t.Errorf("out[%d] = %v, want %v", i+2, out[i+2], w)
		}
	}
}

func TestSMAErrors(t *testing.T) {
	if _, err := SMA([]float64{1, 2}, 3); err == nil {
		t.Error("expected error for short input")
	}
	if _, err := SMA([]float64{1, 2}, 0); err == nil {
		t.Error("expected error for zero period")
	}
}

func TestEMA(t *testing.T) {
	out, err := EMA([]float64{10, 10, 10, 10, 20}, 4)
	if err != nil {
		t.Fatal(err)
	}

	// Seed SMA = 10, multiplier = 0.4, next = 10 + 0.4*(20-10) = 14.
	if !almostEqual(out[3], 10) {
		t.Errorf("seed = %v, want 10", out[3])
	}
	if !almostEqual(out[4], 14) {
		t.Errorf("out[4] = %v, want 14", out[4])
	}
}

func TestRSIExtremes(t *testing.T) {
	up := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	out, err := RSI(up, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !almostEqual(out[len(out)-1], 100) {
		t.Errorf("monotonic rise RSI = %v, want 100", out[len(out)-1])
	}

	down := []float64{8, 7, 6, 5, 4, 3, 2, 1}
	out, err = RSI(down, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !almostEqual(out[len(out)-1], 0) {
		t.Errorf("monotonic fall RSI = %v, want 0", out[len(out)-1])
	}
}

func TestRSIMidrange(t *testing.T) {
	// Alternating equal gains and losses settle near 50.
	values := []float64{100}
	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			values = append(values, values[len(values)-1]+1)
		} else {
			values = append(values, values[len(values)-1]-1)
		}
	}
	out, err := RSI(values, 14)
	if err != nil {
		t.Fatal(err)
	}
	last := out[len(out)-1]
	if last < 40 || last > 60 {
		t.Errorf("alternating RSI = %v, want near 50", last)
	}
}

func TestMACDFlatSeries(t *testing.T) {
	values := make([]float64, 60)
	for i := range values {
		values[i] = 100
	}
	macd, sig, hist, err := MACD(values, 12, 26, 9)
	if err != nil {
		t.Fatal(err)
	}

	last := len(values) - 1
	if !almostEqual(macd[last], 0) || !almostEqual(sig[last], 0) || !almostEqual(hist[last], 0) {
		t.Errorf("flat series macd/sig/hist = %v/%v/%v, want 0", macd[last], sig[last], hist[last])
	}
}

func TestMACDUptrendPositive(t *testing.T) {
	values := make([]float64, 80)
	for i := range values {
		values[i] = 100 + float64(i)
	}
	macd, _, _, err := MACD(values, 12, 26, 9)
	if err != nil {
		t.Fatal(err)
	}
	if macd[len(values)-1] <= 0 {
		t.Errorf("uptrend MACD = %v, want > 0", macd[len(values)-1])
	}
}

func TestATR(t *testing.T) {
	// Constant 2-point range, gapless: every true range is 2.
	rows := [][4]float64{
		{10, 11, 9, 10}, {10, 11, 9, 10}, {10, 11, 9, 10},
		{10, 11, 9, 10}, {10, 11, 9, 10},
	}
	out, err := ATR(barsFromOHLC(rows, 100), 3)
	if err != nil {
		t.Fatal(err)
	}
	if !almostEqual(out[3], 2) || !almostEqual(out[4], 2) {
		t.Errorf("ATR = %v/%v, want 2", out[3], out[4])
	}
}

func TestATRGap(t *testing.T) {
	rows := [][4]float64{
		{10, 11, 9, 10},
		{20, 21, 19, 20}, // gap up: TR = max(2, |21-10|, |19-10|) = 11
	}
	if tr := trueRange(barsFromOHLC(rows, 100)[1], 10); !almostEqual(tr, 11) {
		t.Errorf("gap true range = %v, want 11", tr)
	}
}

func TestBollinger(t *testing.T) {
	values := []float64{2, 4, 6, 8, 10}
	upper, middle, lower, err := Bollinger(values, 5, 2)
	if err != nil {
		t.Fatal(err)
	}

	// Mean 6, population stddev sqrt(8) ≈ 2.828427.
	sd := math.Sqrt(8)
	if !almostEqual(middle[4], 6) {
		t.Errorf("middle = %v, want 6", middle[4])
	}
	if !almostEqual(upper[4], 6+2*sd) {
		t.Errorf("upper = %v, want %v", upper[4], 6+2*sd)
	}
	if !almostEqual(lower[4], 6-2*sd) {
		t.Errorf("lower = %v, want %v", lower[4], 6-2*sd)
	}

	bw, err := Bandwidth(values, 5, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !almostEqual(bw[4], 4*sd/6) {
		t.Errorf("bandwidth = %v, want %v", bw[4], 4*sd/6)
	}
}

func TestVWAP(t *testing.T) {
	bars := []model.Bar{
		{High: 12, Low: 8, Close: 10, Volume: 100},  // typical 10
		{High: 22, Low: 18, Close: 20, Volume: 300}, // typical 20
	}
	out, err := VWAP(bars)
	if err != nil {
		t.Fatal(err)
	}
	if !almostEqual(out[0], 10) {
		t.Errorf("vwap[0] = %v, want 10", out[0])
	}
	// (10*100 + 20*300) / 400 = 17.5
	if !almostEqual(out[1], 17.5) {
		t.Errorf("vwap[1] = %v, want 17.5", out[1])
	}
}

func TestOBV(t *testing.T) {
	bars := []model.Bar{
		{Close: 10, Volume: 100},
		{Close: 11, Volume: 200},
		{Close: 10.5, Volume: 150},
		{Close: 10.5, Volume: 500},
	}
	out, err := OBV(bars)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0, 200, 50, 50}
	for i, w := range want {
		if !almostEqual(out[i], w) {
			t.Errorf("obv[%d] = %v, want %v", i, out[i], w)
		}
	}
}

func TestStochastic(t *testing.T) {
	rows := [][4]float64{
		{10, 12, 8, 10}, {10, 12, 8, 10}, {10, 12, 8, 12}, // close at range high
		{12, 12, 8, 8}, // close at range low
	}
	k, d, err := Stochastic(barsFromOHLC(rows, 100), 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !almostEqual(k[2], 100) {
		t.Errorf("%%K at range high = %v, want 100", k[2])
	}
	if !almostEqual(k[3], 0) {
		t.Errorf("%%K at range low = %v, want 0", k[3])
	}
	if !almostEqual(d[3], 50) {
		t.Errorf("%%D = %v, want 50", d[3])
	}
}

func TestROC(t *testing.T) {
	out, err := ROC([]float64{100, 101, 102, 110}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !almostEqual(out[3], 10) {
		t.Errorf("ROC = %v, want 10", out[3])
	}
}

func TestSupertrendDirections(t *testing.T) {
	// Steady uptrend, then a sharp collapse through the lower band.
	var rows [][4]float64
	p := 100.0
	for i := 0; i < 20; i++ {
		rows = append(rows, [4]float64{p, p + 1, p - 1, p + 0.8})
		p += 1
	}
	for i := 0; i < 5; i++ {
		rows = append(rows, [4]float64{p, p + 1, p - 9, p - 8})
		p -= 8
	}

	line, dir, err := Supertrend(barsFromOHLC(rows, 100), 10, 3)
	if err != nil {
		t.Fatal(err)
	}

	if dir[19] != 1 {
		t.Errorf("direction in uptrend = %d, want 1", dir[19])
	}
	if dir[len(dir)-1] != -1 {
		t.Errorf("direction after collapse = %d, want -1", dir[len(dir)-1])
	}
	if math.IsNaN(line[len(line)-1]) {
		t.Error("supertrend line should be defined after warmup")
	}
}

func TestPivotPoints(t *testing.T) {
	pv := PivotPoints(110, 90, 100)
	if !almostEqual(pv.Pivot, 100) {
		t.Errorf("pivot = %v, want 100", pv.Pivot)
	}
	if !almostEqual(pv.R1, 110) || !almostEqual(pv.S1, 90) {
		t.Errorf("R1/S1 = %v/%v, want 110/90", pv.R1, pv.S1)
	}
	if !almostEqual(pv.R2, 120) || !almostEqual(pv.S2, 80) {
		t.Errorf("R2/S2 = %v/%v, want 120/80", pv.R2, pv.S2)
	}
}

func TestOpeningRange(t *testing.T) {
	rows := [][4]float64{
		{100, 103, 99, 101},
		{101, 105, 100, 104},
		{104, 120, 103, 118}, // outside the first two bars
	}
	bars := barsFromOHLC(rows, 100)

	r, err := OpeningRange(bars, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !almostEqual(r.High, 105) || !almostEqual(r.Low, 99) {
		t.Errorf("range = %+v, want 105/99", r)
	}
	if r.Breakout(106) != 1 || r.Breakout(98) != -1 || r.Breakout(102) != 0 {
		t.Error("breakout classification wrong")
	}

	if _, err := OpeningRange(bars, 5); err == nil {
		t.Error("expected error for too few bars")
	}
}
