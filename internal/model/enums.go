package model

import (
	"errors"
	"fmt"
)

// Side is the direction of an order.
type Side uint8

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	}
	return fmt.Sprintf("Side(%d)", uint8(s))
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

func (s Side) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *Side) UnmarshalJSON(data []byte) error {
	v, err := ParseSide(unquote(data))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSide converts a wire string to a Side.
func ParseSide(v string) (Side, error) {
	switch v {
	case "BUY":
		return SideBuy, nil
	case "SELL":
		return SideSell, nil
	}
	return 0, errors.New("unsupported side: " + v)
}

// PositionSide is the direction of an open position.
type PositionSide uint8

const (
	PositionLong PositionSide = iota
	PositionShort
)

// ExitSide returns the order side that closes the position.
func (p PositionSide) ExitSide() Side {
	if p == PositionShort {
		return SideBuy
	}
	return SideSell
}

func (p PositionSide) String() string {
	if p == PositionShort {
		return "SHORT"
	}
	return "LONG"
}

func (p PositionSide) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

func (p *PositionSide) UnmarshalJSON(data []byte) error {
	switch unquote(data) {
	case "LONG":
		*p = PositionLong
	case "SHORT":
		*p = PositionShort
	default:
		return errors.New("unsupported position side: " + string(data))
	}
	return nil
}

// OrderType is the execution style for an order.
type OrderType uint8

const (
	OrderMarket OrderType = iota
	OrderLimit
	OrderStopLimit
	OrderStopMarket
)

func (t OrderType) String() string {
	switch t {
	case OrderMarket:
		return "MARKET"
	case OrderLimit:
		return "LIMIT"
	case OrderStopLimit:
		return "STOPLOSS_LIMIT"
	case OrderStopMarket:
		return "STOPLOSS_MARKET"
	}
	return fmt.Sprintf("OrderType(%d)", uint8(t))
}

func (t OrderType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *OrderType) UnmarshalJSON(data []byte) error {
	v, err := ParseOrderType(unquote(data))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseOrderType converts a wire string to an OrderType.
func ParseOrderType(v string) (OrderType, error) {
	switch v {
	case "MARKET":
		return OrderMarket, nil
	case "LIMIT":
		return OrderLimit, nil
	case "STOPLOSS_LIMIT":
		return OrderStopLimit, nil
	case "STOPLOSS_MARKET":
		return OrderStopMarket, nil
	}
	return 0, errors.New("unsupported order type: " + v)
}

// ProductType selects margining and square-off rules.
type ProductType uint8

const (
	// ProductIntraday (MIS) positions are auto squared off before close.
	ProductIntraday ProductType = iota
	// ProductDelivery (CNC) positions settle into holdings.
	ProductDelivery
	// ProductCarryForward (NRML) is overnight F&O.
	ProductCarryForward
)

func (p ProductType) String() string {
	switch p {
	case ProductIntraday:
		return "INTRADAY"
	case ProductDelivery:
		return "DELIVERY"
	case ProductCarryForward:
		return "CARRYFORWARD"
	}
	return fmt.Sprintf("ProductType(%d)", uint8(p))
}

func (p ProductType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

func (p *ProductType) UnmarshalJSON(data []byte) error {
	v, err := ParseProductType(unquote(data))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParseProductType converts a wire string to a ProductType.
func ParseProductType(v string) (ProductType, error) {
	switch v {
	case "INTRADAY":
		return ProductIntraday, nil
	case "DELIVERY":
		return ProductDelivery, nil
	case "CARRYFORWARD":
		return ProductCarryForward, nil
	}
	return 0, errors.New("unsupported product type: " + v)
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus uint8

const (
	StatusPending OrderStatus = iota
	StatusOpen
	StatusComplete
	StatusCancelled
	StatusRejected
	StatusTriggerPending
)

func (s OrderStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusOpen:
		return "open"
	case StatusComplete:
		return "complete"
	case StatusCancelled:
		return "cancelled"
	case StatusRejected:
		return "rejected"
	case StatusTriggerPending:
		return "trigger_pending"
	}
	return fmt.Sprintf("OrderStatus(%d)", uint8(s))
}

// Terminal reports whether the order can no longer change state.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusComplete, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

func (s OrderStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *OrderStatus) UnmarshalJSON(data []byte) error {
	switch unquote(data) {
	case "pending":
		*s = StatusPending
	case "open":
		*s = StatusOpen
	case "complete":
		*s = StatusComplete
	case "cancelled":
		*s = StatusCancelled
	case "rejected":
		*s = StatusRejected
	case "trigger_pending":
		*s = StatusTriggerPending
	default:
		return errors.New("unsupported order status: " + string(data))
	}
	return nil
}

// Exchange is an NSE/BSE market segment code.
type Exchange string

const (
	ExchangeNSE Exchange = "NSE"
	ExchangeBSE Exchange = "BSE"
	ExchangeNFO Exchange = "NFO" // NSE F&O
	ExchangeBFO Exchange = "BFO" // BSE F&O
	ExchangeMCX Exchange = "MCX" // Commodity
	ExchangeCDS Exchange = "CDS" // Currency
)

// Valid reports whether the exchange code is known.
func (e Exchange) Valid() bool {
	switch e {
	case ExchangeNSE, ExchangeBSE, ExchangeNFO, ExchangeBFO, ExchangeMCX, ExchangeCDS:
		return true
	}
	return false
}

// GTTCondition is the trigger comparison for a GTT order.
type GTTCondition uint8

const (
	// TriggerAtOrAbove fires when price >= trigger.
	TriggerAtOrAbove GTTCondition = iota
	// TriggerAtOrBelow fires when price <= trigger.
	TriggerAtOrBelow
)

func (c GTTCondition) String() string {
	if c == TriggerAtOrBelow {
		return "LTE"
	}
	return "GTE"
}

func (c GTTCondition) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

func (c *GTTCondition) UnmarshalJSON(data []byte) error {
	switch unquote(data) {
	case "GTE":
		*c = TriggerAtOrAbove
	case "LTE":
		*c = TriggerAtOrBelow
	default:
		return errors.New("unsupported gtt condition: " + string(data))
	}
	return nil
}

// SignalAction is a strategy decision.
type SignalAction uint8

const (
	ActionHold SignalAction = iota
	ActionBuy
	ActionSell
)

func (a SignalAction) String() string {
	switch a {
	case ActionBuy:
		return "BUY"
	case ActionSell:
		return "SELL"
	}
	return "HOLD"
}

func (a SignalAction) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// unquote strips surrounding double quotes from a JSON string literal.
func unquote(data []byte) string {
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		return string(data[1 : len(data)-1])
	}
	return string(data)
}
