package model

import "time"

// -----------------------------------------------------------------------------
// Reference Types
// -----------------------------------------------------------------------------

// Instrument describes a tradeable listing from the exchange scrip master.
type Instrument struct {
	Token       string    // Exchange numeric token (e.g. "3045")
	Symbol      string    // Trading symbol (e.g. "SBIN-EQ")
	Name        string    // Issuer name (e.g. "STATE BANK OF INDIA")
	Exchange    Exchange  // Segment (NSE, NFO, ...)
	LotSize     int64     // Minimum tradeable lot (1 for equity)
	TickSize    float64   // Price increment (0.05 for NSE equity)
	Expiry      time.Time // Zero for equity
	InstType    string    // "" for equity, "FUTSTK", "OPTIDX", ...
	StrikePrice float64   // Zero for non-options
}

// IsDerivative reports whether the instrument is an F&O listing.
func (i Instrument) IsDerivative() bool {
	return i.InstType != ""
}

// -----------------------------------------------------------------------------
// Market Data Types
// -----------------------------------------------------------------------------

// Tick is a normalized last-traded-price update from the feed.
type Tick struct {
	Symbol     string    // Trading symbol
	Token      string    // Exchange token
	LTP        float64   // Last traded price
	Bid        float64   // Best bid (0 if not provided by the feed mode)
	Ask        float64   // Best ask (0 if not provided)
	LastQty    int64     // Quantity of the last trade
	Volume     int64     // Cumulative day volume
	ExchangeTS time.Time // Exchange timestamp
	ReceivedAt time.Time // Local receive timestamp
}

// Bar is an OHLCV candle for a single interval.
type Bar struct {
	Symbol    string
	Interval  time.Duration // Bar width (e.g. time.Minute)
	Start     time.Time     // Bar open time, aligned to the interval
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	TickCount int64 // Ticks aggregated into this bar (0 for historical data)
}

// End returns the exclusive end time of the bar.
func (b Bar) End() time.Time {
	return b.Start.Add(b.Interval)
}

// -----------------------------------------------------------------------------
// Trading Types
// -----------------------------------------------------------------------------

// Order is a paper order record.
type Order struct {
	ID          string
	Symbol      string
	Side        Side
	Type        OrderType
	Product     ProductType
	Quantity    int64
	Price       float64 // Limit/trigger price; fill price once complete
	Status      OrderStatus
	Reason      string // Rejection reason or fill annotation
	Source      string // "api", "strategy", "gtt", "bracket", "square_off"
	StrategyID  string // Set when placed by a strategy
	PlacedAt    time.Time
	CompletedAt time.Time // Zero until terminal
}

// Position is an open holding in the paper portfolio.
type Position struct {
	Symbol   string
	Side     PositionSide
	Quantity int64
	AvgPrice float64
	Product  ProductType
	OpenedAt time.Time
}

// MarketValue returns the position value at the given price.
func (p Position) MarketValue(price float64) float64 {
	return float64(p.Quantity) * price
}

// UnrealizedPnL returns the open P&L at the given price.
func (p Position) UnrealizedPnL(price float64) float64 {
	if p.Side == PositionShort {
		return (p.AvgPrice - price) * float64(p.Quantity)
	}
	return (price - p.AvgPrice) * float64(p.Quantity)
}

// Fill records an executed paper trade.
type Fill struct {
	OrderID    string
	Symbol     string
	Side       Side
	Quantity   int64
	Price      float64
	Commission float64
	PnL        float64 // Realized P&L for closing fills, 0 otherwise
	FilledAt   time.Time
}

// Signal is a strategy decision for audit and streaming.
type Signal struct {
	StrategyID string
	Symbol     string
	Action     SignalAction
	Price      float64
	Reason     string
	At         time.Time
}
