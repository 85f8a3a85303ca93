// Package model defines shared data types used across paperdesk.
//
// Conventions:
//   - Prices: float64 rupees, rounded to exchange tick size (0.05) at order entry
//   - Timestamps: time.Time, IST for anything session-relevant
//   - Quantities: int64 shares/contracts, always multiples of lot size for F&O
//   - IDs: string tokens for instruments, uuid-derived strings for orders
package model
