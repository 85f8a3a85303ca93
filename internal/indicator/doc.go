// Package indicator implements technical indicators over OHLCV series.
//
// All series functions return a slice the same length as the input, with
// math.NaN() in the warmup region before the indicator has enough data.
// Callers check readiness with math.IsNaN on the positions they use.
package indicator
