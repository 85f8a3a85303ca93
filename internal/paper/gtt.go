package paper

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arjunkv/paperdesk/internal/model"
)

// GTT book errors.
var (
	ErrUnknownGTT = errors.New("paper: unknown gtt")
	ErrNotActive  = errors.New("paper: gtt is not active")
)

// Executor places orders when a trigger fires. Satisfied by *Portfolio.
type Executor interface {
	Submit(req OrderRequest, marketPrice float64) (model.Order, error)
}

// GTTStatus is the lifecycle state of a GTT trigger.
type GTTStatus uint8

const (
	GTTActive GTTStatus = iota
	GTTTriggered
	GTTCancelled
)

func (s GTTStatus) String() string {
	switch s {
	case GTTTriggered:
		return "triggered"
	case GTTCancelled:
		return "cancelled"
	}
	return "active"
}

func (s GTTStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// GTTRequest describes one trigger to register.
type GTTRequest struct {
	Symbol       string
	Condition    model.GTTCondition
	TriggerPrice float64
	Side         model.Side
	Quantity     int64
	Product      model.ProductType
	Source       string
}

// GTT is a good-till-triggered order resting in the book.
type GTT struct {
	ID           string             `json:"id"`
	Symbol       string             `json:"symbol"`
	Condition    model.GTTCondition `json:"condition"`
	TriggerPrice float64            `json:"trigger_price"`
	Side         model.Side         `json:"side"`
	Quantity     int64              `json:"quantity"`
	Product      model.ProductType  `json:"product"`
	Status       GTTStatus          `json:"status"`
	OCOGroup     string             `json:"oco_group,omitempty"` // Shared by OCO legs
	OrderID      string             `json:"order_id,omitempty"`  // Order placed on trigger
	Source       string             `json:"source"`
	CreatedAt    time.Time          `json:"created_at"`
	TriggeredAt  time.Time          `json:"triggered_at,omitzero"`
}

// GTTBook holds resting triggers and fires them off the tick stream.
// OCO pairs cancel the sibling leg atomically with the trigger.
type GTTBook struct {
	exec   Executor
	logger *slog.Logger

	mu   sync.Mutex
	gtts map[string]*GTT
	seq  []string
	now  func() time.Time
}

// NewGTTBook creates an empty trigger book.
func NewGTTBook(exec Executor, logger *slog.Logger) *GTTBook {
	if logger == nil {
		logger = slog.Default()
	}
	return &GTTBook{
		exec:   exec,
		logger: logger,
		gtts:   make(map[string]*GTT),
		now:    time.Now,
	}
}

// Add registers a single trigger.
func (b *GTTBook) Add(req GTTRequest) GTT {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.addLocked(req, "")
}

// AddOCO registers two triggers as a one-cancels-other pair.
func (b *GTTBook) AddOCO(first, second GTTRequest) (GTT, GTT) {
	group := uuid.NewString()
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.addLocked(first, group), *b.addLocked(second, group)
}

func (b *GTTBook) addLocked(req GTTRequest, group string) *GTT {
	if req.Source == "" {
		req.Source = "gtt"
	}
	g := &GTT{
		ID:           uuid.NewString(),
		Symbol:       req.Symbol,
		Condition:    req.Condition,
		TriggerPrice: req.TriggerPrice,
		Side:         req.Side,
		Quantity:     req.Quantity,
		Product:      req.Product,
		Status:       GTTActive,
		OCOGroup:     group,
		Source:       req.Source,
		CreatedAt:    b.now(),
	}
	b.gtts[g.ID] = g
	b.seq = append(b.seq, g.ID)
	return g
}

// OnTick evaluates active triggers for a symbol against a new price and
// fires the ones that cross. Returns the triggers that fired.
func (b *GTTBook) OnTick(symbol string, price float64) []GTT {
	b.mu.Lock()

	var fired []*GTT
	for _, id := range b.seq {
		g := b.gtts[id]
		if g.Symbol != symbol || g.Status != GTTActive {
			continue
		}
		if !crossed(g.Condition, g.TriggerPrice, price) {
			continue
		}

		g.Status = GTTTriggered
		g.TriggeredAt = b.now()
		fired = append(fired, g)

		if g.OCOGroup != "" {
			b.cancelSiblingsLocked(g)
		}
	}
	b.mu.Unlock()

	// Place orders outside the book lock. The portfolio has its own.
	out := make([]GTT, 0, len(fired))
	for _, g := range fired {
		order, err := b.exec.Submit(OrderRequest{
			Symbol:   g.Symbol,
			Side:     g.Side,
			Type:     model.OrderMarket,
			Product:  g.Product,
			Quantity: g.Quantity,
			Source:   g.Source,
		}, price)

		b.mu.Lock()
		if err != nil {
			b.logger.Error("gtt order rejected", "gtt_id", g.ID, "symbol", g.Symbol, "error", err)
		} else {
			g.OrderID = order.ID
			b.logger.Info("gtt triggered",
				"gtt_id", g.ID,
				"symbol", g.Symbol,
				"trigger", g.TriggerPrice,
				"price", price,
				"order_id", order.ID,
			)
		}
		snap := *g
		b.mu.Unlock()
		out = append(out, snap)
	}
	return out
}

// cancelSiblingsLocked cancels the other active legs of an OCO group.
func (b *GTTBook) cancelSiblingsLocked(fired *GTT) {
	for _, other := range b.gtts {
		if other.ID == fired.ID || other.OCOGroup != fired.OCOGroup {
			continue
		}
		if other.Status == GTTActive {
			other.Status = GTTCancelled
			b.logger.Info("oco sibling cancelled", "gtt_id", other.ID, "fired_id", fired.ID)
		}
	}
}

// Reprice moves an active trigger to a new price. The condition, side and
// OCO link are unchanged.
func (b *GTTBook) Reprice(id string, trigger float64) (GTT, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	g, ok := b.gtts[id]
	if !ok {
		return GTT{}, ErrUnknownGTT
	}
	if g.Status != GTTActive {
		return GTT{}, ErrNotActive
	}

	old := g.TriggerPrice
	g.TriggerPrice = trigger
	b.logger.Info("gtt repriced", "gtt_id", id, "from", old, "to", trigger)
	return *g, nil
}

// Cancel deactivates a trigger.
func (b *GTTBook) Cancel(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	g, ok := b.gtts[id]
	if !ok {
		return ErrUnknownGTT
	}
	if g.Status != GTTActive {
		return ErrNotActive
	}
	g.Status = GTTCancelled
	return nil
}

// Get returns one trigger by ID.
func (b *GTTBook) Get(id string) (GTT, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.gtts[id]
	if !ok {
		return GTT{}, false
	}
	return *g, true
}

// List returns all triggers in creation order.
func (b *GTTBook) List() []GTT {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]GTT, 0, len(b.seq))
	for _, id := range b.seq {
		out = append(out, *b.gtts[id])
	}
	return out
}

// Active returns active triggers sorted by symbol.
func (b *GTTBook) Active() []GTT {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []GTT
	for _, id := range b.seq {
		if g := b.gtts[id]; g.Status == GTTActive {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func crossed(cond model.GTTCondition, trigger, price float64) bool {
	if cond == model.TriggerAtOrAbove {
		return price >= trigger
	}
	return price <= trigger
}
