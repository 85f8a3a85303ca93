// Package strategy implements bar-driven trading strategies and the
// manager that runs them. Strategies consume closed bars for one symbol
// and interval, keep their own indicator state, and emit buy/sell
// signals. The manager routes bars, applies risk checks, and places the
// resulting paper orders.
package strategy
