// Package api serves the REST and WebSocket control surface: portfolio
// and order management, strategy lifecycle, market data queries, risk
// and session status, health and Prometheus metrics.
package api
