// Package paper simulates order execution against live prices. It keeps
// a cash ledger and average-price positions, applies slippage and
// commission to fills, and maintains conditional order books (GTT and
// bracket orders) that trigger off the tick stream.
package paper
