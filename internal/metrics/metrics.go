// Package metrics exposes Prometheus collectors for the trading service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicksReceived counts ticks accepted from the feed.
	TicksReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paperdesk_ticks_received_total",
		Help: "Total ticks received from the market data feed",
	})

	// TicksDropped counts ticks dropped per consumer when its queue is full.
	TicksDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperdesk_ticks_dropped_total",
		Help: "Total ticks dropped because a consumer queue was full",
	}, []string{"consumer"})

	// BarsBuilt counts completed OHLCV bars by interval.
	BarsBuilt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperdesk_bars_built_total",
		Help: "Total OHLCV bars completed by the aggregator",
	}, []string{"interval"})

	// OrdersTotal counts paper orders by terminal status and source.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperdesk_orders_total",
		Help: "Total paper orders by status and source",
	}, []string{"status", "source"})

	// SignalsTotal counts strategy signals by strategy and action.
	SignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperdesk_strategy_signals_total",
		Help: "Total strategy signals emitted",
	}, []string{"strategy", "action"})

	// FeedReconnects counts feed reconnection attempts.
	FeedReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paperdesk_feed_reconnects_total",
		Help: "Total market data feed reconnect attempts",
	})

	// PortfolioValue is the current total portfolio value in rupees.
	PortfolioValue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paperdesk_portfolio_value_rupees",
		Help: "Current portfolio value (cash plus positions at last price)",
	})

	// DailyPnL is today's realized plus unrealized P&L in rupees.
	DailyPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paperdesk_daily_pnl_rupees",
		Help: "Realized plus unrealized P&L for the current session",
	})

	// OpenPositions is the number of open paper positions.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paperdesk_open_positions",
		Help: "Number of open paper positions",
	})

	// StreamClients is the number of connected WebSocket stream clients.
	StreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paperdesk_stream_clients",
		Help: "Connected WebSocket stream clients",
	})

	// RequestDuration tracks API request latency by route and status class.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paperdesk_http_request_duration_seconds",
		Help:    "API request latency",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"route", "code"})

	// WriteBatchSize tracks database write batch sizes by writer.
	WriteBatchSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paperdesk_write_batch_size",
		Help:    "Rows per database write batch",
		Buckets: []float64{1, 10, 50, 100, 250, 500, 1000},
	}, []string{"writer"})
)

// RecordOrder increments the order counter for a terminal order.
func RecordOrder(status, source string) {
	OrdersTotal.WithLabelValues(status, source).Inc()
}

// RecordSignal increments the signal counter.
func RecordSignal(strategy, action string) {
	SignalsTotal.WithLabelValues(strategy, action).Inc()
}
