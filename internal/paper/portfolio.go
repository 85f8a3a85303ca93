package paper

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arjunkv/paperdesk/internal/config"
	"github.com/arjunkv/paperdesk/internal/metrics"
	"github.com/arjunkv/paperdesk/internal/model"
)

// Rejection reasons surfaced on orders and as errors.
var (
	ErrInsufficientFunds = errors.New("paper: insufficient funds")
	ErrNoPosition        = errors.New("paper: no position to close")
	ErrShortNotAllowed   = errors.New("paper: short selling disabled")
	ErrUnknownOrder      = errors.New("paper: unknown order")
	ErrNotOpen           = errors.New("paper: order is not open")
)

// FillSink receives executed fills, implemented by the journal writer.
type FillSink interface {
	Record(model.Fill)
}

// OrderRequest is a request to place a paper order.
type OrderRequest struct {
	Symbol       string
	Side         model.Side
	Type         model.OrderType
	Product      model.ProductType
	Quantity     int64
	LimitPrice   float64 // Limit orders
	TriggerPrice float64 // Stop-loss orders
	Source       string
	StrategyID   string
}

// Portfolio is the simulated account: cash, positions and orders.
type Portfolio struct {
	cfg     config.PaperConfig
	logger  *slog.Logger
	journal FillSink

	mu        sync.RWMutex
	cash      float64
	positions map[string]*model.Position
	orders    map[string]*model.Order
	orderSeq  []string // insertion order for listing
	fills     []model.Fill
	realized  float64 // lifetime realized P&L
	daily     float64 // today's realized P&L
	now       func() time.Time
}

// NewPortfolio creates a portfolio with the configured starting capital.
func NewPortfolio(cfg config.PaperConfig, journal FillSink, logger *slog.Logger) *Portfolio {
	if logger == nil {
		logger = slog.Default()
	}
	return &Portfolio{
		cfg:       cfg,
		logger:    logger,
		journal:   journal,
		cash:      cfg.InitialCapital,
		positions: make(map[string]*model.Position),
		orders:    make(map[string]*model.Order),
		now:       time.Now,
	}
}

// WithClock overrides the portfolio clock. For tests.
func (p *Portfolio) WithClock(now func() time.Time) *Portfolio {
	p.now = now
	return p
}

// Submit places an order against the current market price. Market orders
// fill immediately; limit and stop orders rest until a tick crosses them.
func (p *Portfolio) Submit(req OrderRequest, marketPrice float64) (model.Order, error) {
	if req.Quantity <= 0 {
		return model.Order{}, fmt.Errorf("paper: quantity must be positive, got %d", req.Quantity)
	}
	if req.Source == "" {
		req.Source = "api"
	}

	order := model.Order{
		ID:         uuid.NewString(),
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       req.Type,
		Product:    req.Product,
		Quantity:   req.Quantity,
		Status:     model.StatusOpen,
		Source:     req.Source,
		StrategyID: req.StrategyID,
		PlacedAt:   p.now(),
	}

	switch req.Type {
	case model.OrderMarket:
		order.Price = marketPrice
	case model.OrderLimit:
		order.Price = req.LimitPrice
	case model.OrderStopLimit, model.OrderStopMarket:
		order.Price = req.TriggerPrice
	}

	p.mu.Lock()
	p.orders[order.ID] = &order
	p.orderSeq = append(p.orderSeq, order.ID)

	var err error
	if req.Type == model.OrderMarket {
		err = p.executeLocked(&order, marketPrice)
	} else if p.marketable(&order, marketPrice) {
		err = p.executeLocked(&order, order.Price)
	}
	p.mu.Unlock()

	if order.Status.Terminal() {
		metrics.RecordOrder(order.Status.String(), order.Source)
	}
	return order, err
}

// OnTick advances resting orders for a symbol against a new price.
// Returns the orders that filled.
func (p *Portfolio) OnTick(symbol string, price float64) []model.Order {
	p.mu.Lock()

	var filled []model.Order
	for _, id := range p.orderSeq {
		o := p.orders[id]
		if o.Symbol != symbol || o.Status != model.StatusOpen || o.Type == model.OrderMarket {
			continue
		}
		if !p.marketable(o, price) {
			continue
		}

		execPrice := o.Price
		if o.Type == model.OrderStopMarket {
			execPrice = price
		}
		if err := p.executeLocked(o, execPrice); err != nil {
			continue // rejected, status set inside
		}
		filled = append(filled, *o)
	}
	p.mu.Unlock()

	for _, o := range filled {
		metrics.RecordOrder(o.Status.String(), o.Source)
	}
	return filled
}

// marketable reports whether a resting order crosses at price.
// Caller holds p.mu.
func (p *Portfolio) marketable(o *model.Order, price float64) bool {
	switch o.Type {
	case model.OrderLimit:
		if o.Side == model.SideBuy {
			return price <= o.Price
		}
		return price >= o.Price
	case model.OrderStopLimit, model.OrderStopMarket:
		// Stop-loss: buy stops trigger above, sell stops below.
		if o.Side == model.SideBuy {
			return price >= o.Price
		}
		return price <= o.Price
	}
	return false
}

// executeLocked fills an order at execPrice. Caller holds p.mu.
func (p *Portfolio) executeLocked(o *model.Order, execPrice float64) error {
	price := p.applySlippage(o.Side, execPrice)
	value := float64(o.Quantity) * price
	commission := value * p.cfg.CommissionPct

	pos := p.positions[o.Symbol]
	closing := pos != nil &&
		((o.Side == model.SideSell && pos.Side == model.PositionLong) ||
			(o.Side == model.SideBuy && pos.Side == model.PositionShort))

	if !closing {
		// Opening or adding.
		if o.Side == model.SideSell && !p.cfg.AllowShort {
			p.reject(o, ErrShortNotAllowed.Error())
			return ErrShortNotAllowed
		}
		if o.Side == model.SideBuy && p.cash < value+commission {
			p.reject(o, fmt.Sprintf("need %.2f, have %.2f", value+commission, p.cash))
			return ErrInsufficientFunds
		}
		p.open(o, price, commission)
	} else {
		if o.Quantity > pos.Quantity {
			p.reject(o, fmt.Sprintf("close %d exceeds position %d", o.Quantity, pos.Quantity))
			return fmt.Errorf("paper: close quantity %d exceeds position %d", o.Quantity, pos.Quantity)
		}
		p.close(o, pos, price, commission)
	}

	o.Status = model.StatusComplete
	o.Price = price
	o.CompletedAt = p.now()
	return nil
}

// open opens or adds to a position.
func (p *Portfolio) open(o *model.Order, price, commission float64) {
	value := float64(o.Quantity) * price

	if o.Side == model.SideBuy {
		p.cash -= value + commission
	} else {
		p.cash += value - commission // short proceeds
	}

	side := model.PositionLong
	if o.Side == model.SideSell {
		side = model.PositionShort
	}

	pos := p.positions[o.Symbol]
	if pos == nil {
		p.positions[o.Symbol] = &model.Position{
			Symbol:   o.Symbol,
			Side:     side,
			Quantity: o.Quantity,
			AvgPrice: price,
			Product:  o.Product,
			OpenedAt: p.now(),
		}
	} else {
		// Average in.
		total := float64(pos.Quantity)*pos.AvgPrice + value
		pos.Quantity += o.Quantity
		pos.AvgPrice = total / float64(pos.Quantity)
	}

	p.recordFill(o, price, commission, 0)
}

// close reduces or closes a position, realizing P&L.
func (p *Portfolio) close(o *model.Order, pos *model.Position, price, commission float64) {
	var pnl float64
	if pos.Side == model.PositionLong {
		pnl = (price - pos.AvgPrice) * float64(o.Quantity)
		p.cash += float64(o.Quantity)*price - commission
	} else {
		pnl = (pos.AvgPrice - price) * float64(o.Quantity)
		p.cash -= float64(o.Quantity)*price + commission
	}

	pos.Quantity -= o.Quantity
	if pos.Quantity == 0 {
		delete(p.positions, o.Symbol)
	}

	p.realized += pnl
	p.daily += pnl
	p.recordFill(o, price, commission, pnl)
}

func (p *Portfolio) reject(o *model.Order, reason string) {
	o.Status = model.StatusRejected
	o.Reason = reason
	o.CompletedAt = p.now()
	p.logger.Warn("paper order rejected",
		"order_id", o.ID,
		"symbol", o.Symbol,
		"side", o.Side.String(),
		"reason", reason,
	)
}

func (p *Portfolio) recordFill(o *model.Order, price, commission, pnl float64) {
	fill := model.Fill{
		OrderID:    o.ID,
		Symbol:     o.Symbol,
		Side:       o.Side,
		Quantity:   o.Quantity,
		Price:      price,
		Commission: commission,
		PnL:        pnl,
		FilledAt:   p.now(),
	}
	p.fills = append(p.fills, fill)
	if p.journal != nil {
		p.journal.Record(fill)
	}

	p.logger.Info("paper fill",
		"order_id", o.ID,
		"symbol", o.Symbol,
		"side", o.Side.String(),
		"qty", o.Quantity,
		"price", price,
		"pnl", pnl,
	)
}

func (p *Portfolio) applySlippage(side model.Side, price float64) float64 {
	if side == model.SideBuy {
		return price * (1 + p.cfg.SlippagePct)
	}
	return price * (1 - p.cfg.SlippagePct)
}

// CancelOrder cancels a resting order.
func (p *Portfolio) CancelOrder(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[id]
	if !ok {
		return ErrUnknownOrder
	}
	if o.Status != model.StatusOpen {
		return ErrNotOpen
	}
	o.Status = model.StatusCancelled
	o.CompletedAt = p.now()
	return nil
}

// SquareOffAll closes every open position at its mark price. Used at the
// intraday cutoff and by the kill switch.
func (p *Portfolio) SquareOffAll(marks map[string]float64, source string) []model.Order {
	p.mu.RLock()
	symbols := make([]string, 0, len(p.positions))
	for sym := range p.positions {
		symbols = append(symbols, sym)
	}
	p.mu.RUnlock()
	sort.Strings(symbols)

	var orders []model.Order
	for _, sym := range symbols {
		p.mu.RLock()
		pos, ok := p.positions[sym]
		if !ok {
			p.mu.RUnlock()
			continue
		}
		qty := pos.Quantity
		side := pos.Side.ExitSide()
		product := pos.Product
		p.mu.RUnlock()

		price, ok := marks[sym]
		if !ok {
			p.logger.Warn("no mark price for square-off", "symbol", sym)
			continue
		}

		order, err := p.Submit(OrderRequest{
			Symbol:   sym,
			Side:     side,
			Type:     model.OrderMarket,
			Product:  product,
			Quantity: qty,
			Source:   source,
		}, price)
		if err != nil {
			p.logger.Error("square-off failed", "symbol", sym, "error", err)
			continue
		}
		orders = append(orders, order)
	}

	if len(orders) > 0 {
		p.logger.Info("squared off all positions", "count", len(orders), "source", source)
	}
	return orders
}

// ResetDaily clears today's realized P&L counter at session start.
func (p *Portfolio) ResetDaily() {
	p.mu.Lock()
	p.daily = 0
	p.mu.Unlock()
}

// Reset restores the portfolio to its initial state.
func (p *Portfolio) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cash = p.cfg.InitialCapital
	p.positions = make(map[string]*model.Position)
	p.orders = make(map[string]*model.Order)
	p.orderSeq = nil
	p.fills = nil
	p.realized = 0
	p.daily = 0
	p.logger.Info("portfolio reset", "capital", p.cfg.InitialCapital)
}

// Cash returns available cash.
func (p *Portfolio) Cash() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash
}

// RealizedPnL returns lifetime realized P&L.
func (p *Portfolio) RealizedPnL() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.realized
}

// DailyRealizedPnL returns today's realized P&L.
func (p *Portfolio) DailyRealizedPnL() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.daily
}

// Position returns the open position for a symbol.
func (p *Portfolio) Position(symbol string) (model.Position, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pos, ok := p.positions[symbol]
	if !ok {
		return model.Position{}, false
	}
	return *pos, true
}

// Positions returns all open positions, sorted by symbol.
func (p *Portfolio) Positions() []model.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]model.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Orders returns all orders in placement order.
func (p *Portfolio) Orders() []model.Order {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]model.Order, 0, len(p.orderSeq))
	for _, id := range p.orderSeq {
		out = append(out, *p.orders[id])
	}
	return out
}

// Order returns one order by ID.
func (p *Portfolio) Order(id string) (model.Order, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	o, ok := p.orders[id]
	if !ok {
		return model.Order{}, false
	}
	return *o, true
}

// Fills returns all fills in execution order.
func (p *Portfolio) Fills() []model.Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]model.Fill(nil), p.fills...)
}

// UnrealizedPnL sums open P&L across positions at the given marks.
func (p *Portfolio) UnrealizedPnL(marks map[string]float64) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var total float64
	for sym, pos := range p.positions {
		if price, ok := marks[sym]; ok {
			total += pos.UnrealizedPnL(price)
		}
	}
	return total
}

// TotalValue is cash plus position value at the given marks. Short
// positions subtract their buyback cost.
func (p *Portfolio) TotalValue(marks map[string]float64) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	total := p.cash
	for sym, pos := range p.positions {
		price, ok := marks[sym]
		if !ok {
			price = pos.AvgPrice
		}
		if pos.Side == model.PositionLong {
			total += pos.MarketValue(price)
		} else {
			total -= pos.MarketValue(price)
		}
	}
	return total
}

// Summary is an account snapshot for the API.
type Summary struct {
	Cash           float64 `json:"cash"`
	InitialCapital float64 `json:"initial_capital"`
	TotalValue     float64 `json:"total_value"`
	RealizedPnL    float64 `json:"realized_pnl"`
	UnrealizedPnL  float64 `json:"unrealized_pnl"`
	DailyPnL       float64 `json:"daily_pnl"`
	OpenPositions  int     `json:"open_positions"`
	TotalOrders    int     `json:"total_orders"`
}

// Snapshot builds an account summary at the given marks and refreshes
// the portfolio gauges.
func (p *Portfolio) Snapshot(marks map[string]float64) Summary {
	unrealized := p.UnrealizedPnL(marks)
	value := p.TotalValue(marks)

	p.mu.RLock()
	s := Summary{
		Cash:           p.cash,
		InitialCapital: p.cfg.InitialCapital,
		TotalValue:     value,
		RealizedPnL:    p.realized,
		UnrealizedPnL:  unrealized,
		DailyPnL:       p.daily + unrealized,
		OpenPositions:  len(p.positions),
		TotalOrders:    len(p.orderSeq),
	}
	p.mu.RUnlock()

	metrics.PortfolioValue.Set(s.TotalValue)
	metrics.DailyPnL.Set(s.DailyPnL)
	metrics.OpenPositions.Set(float64(s.OpenPositions))
	return s
}
