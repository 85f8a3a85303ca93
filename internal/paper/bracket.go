package paper

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arjunkv/paperdesk/internal/model"
)

// ErrUnknownBracket is returned for bracket lookups that miss.
var ErrUnknownBracket = errors.New("paper: unknown bracket")

// BracketRequest describes an entry with attached target and stop legs.
// Target and stop are absolute prices, not offsets.
type BracketRequest struct {
	Symbol     string
	Side       model.Side // Entry side
	Quantity   int64
	Product    model.ProductType
	Target     float64
	StopLoss   float64
	Source     string
	StrategyID string
}

// Bracket tracks an entry order and its exit OCO pair.
type Bracket struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	EntryOrderID string    `json:"entry_order_id"`
	EntryPrice   float64   `json:"entry_price"`
	TargetGTTID  string    `json:"target_gtt_id"`
	StopGTTID    string    `json:"stop_gtt_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// BracketBook places bracket orders: a market entry plus a target and a
// stop-loss leg registered as an OCO pair in the GTT book.
type BracketBook struct {
	exec   Executor
	gtts   *GTTBook
	logger *slog.Logger

	mu       sync.Mutex
	brackets map[string]*Bracket
	seq      []string
}

// NewBracketBook creates a bracket book on top of an executor and GTT book.
func NewBracketBook(exec Executor, gtts *GTTBook, logger *slog.Logger) *BracketBook {
	if logger == nil {
		logger = slog.Default()
	}
	return &BracketBook{
		exec:     exec,
		gtts:     gtts,
		logger:   logger,
		brackets: make(map[string]*Bracket),
	}
}

// Place fills the entry at the market price and registers the exit legs.
// For a long entry the target is a sell at-or-above and the stop a sell
// at-or-below; mirrored for shorts.
func (b *BracketBook) Place(req BracketRequest, marketPrice float64) (Bracket, error) {
	if err := validateBracket(req, marketPrice); err != nil {
		return Bracket{}, err
	}
	if req.Source == "" {
		req.Source = "bracket"
	}

	entry, err := b.exec.Submit(OrderRequest{
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       model.OrderMarket,
		Product:    req.Product,
		Quantity:   req.Quantity,
		Source:     req.Source,
		StrategyID: req.StrategyID,
	}, marketPrice)
	if err != nil {
		return Bracket{}, fmt.Errorf("bracket entry: %w", err)
	}

	exitSide := req.Side.Opposite()
	targetCond := model.TriggerAtOrAbove
	stopCond := model.TriggerAtOrBelow
	if req.Side == model.SideSell {
		targetCond = model.TriggerAtOrBelow
		stopCond = model.TriggerAtOrAbove
	}

	target, stop := b.gtts.AddOCO(
		GTTRequest{
			Symbol:       req.Symbol,
			Condition:    targetCond,
			TriggerPrice: req.Target,
			Side:         exitSide,
			Quantity:     req.Quantity,
			Product:      req.Product,
			Source:       req.Source,
		},
		GTTRequest{
			Symbol:       req.Symbol,
			Condition:    stopCond,
			TriggerPrice: req.StopLoss,
			Side:         exitSide,
			Quantity:     req.Quantity,
			Product:      req.Product,
			Source:       req.Source,
		},
	)

	bracket := &Bracket{
		ID:           uuid.NewString(),
		Symbol:       req.Symbol,
		EntryOrderID: entry.ID,
		EntryPrice:   entry.Price,
		TargetGTTID:  target.ID,
		StopGTTID:    stop.ID,
		CreatedAt:    entry.PlacedAt,
	}

	b.mu.Lock()
	b.brackets[bracket.ID] = bracket
	b.seq = append(b.seq, bracket.ID)
	b.mu.Unlock()

	b.logger.Info("bracket placed",
		"bracket_id", bracket.ID,
		"symbol", req.Symbol,
		"entry", entry.Price,
		"target", req.Target,
		"stop", req.StopLoss,
	)
	return *bracket, nil
}

// ModifySL moves the stop-loss leg to a new trigger price. Fails when the
// stop leg has already fired or been cancelled.
func (b *BracketBook) ModifySL(id string, newStop float64) (Bracket, error) {
	b.mu.Lock()
	br, ok := b.brackets[id]
	b.mu.Unlock()
	if !ok {
		return Bracket{}, ErrUnknownBracket
	}

	stop, ok := b.gtts.Get(br.StopGTTID)
	if !ok || stop.Status != GTTActive {
		return Bracket{}, ErrNotActive
	}

	// The stop must stay on the loss side of the entry: below for longs
	// (sell at-or-below), above for shorts.
	if stop.Condition == model.TriggerAtOrBelow && newStop >= br.EntryPrice {
		return Bracket{}, fmt.Errorf("paper: long stop %.2f must be below entry %.2f", newStop, br.EntryPrice)
	}
	if stop.Condition == model.TriggerAtOrAbove && newStop <= br.EntryPrice {
		return Bracket{}, fmt.Errorf("paper: short stop %.2f must be above entry %.2f", newStop, br.EntryPrice)
	}

	if _, err := b.gtts.Reprice(br.StopGTTID, newStop); err != nil {
		return Bracket{}, err
	}

	b.logger.Info("bracket stop modified",
		"bracket_id", id,
		"symbol", br.Symbol,
		"stop", newStop,
	)
	return *br, nil
}

// Cancel cancels both exit legs. The entry position stays open.
func (b *BracketBook) Cancel(id string) error {
	b.mu.Lock()
	br, ok := b.brackets[id]
	b.mu.Unlock()
	if !ok {
		return ErrUnknownBracket
	}

	// Either leg may already be terminal. Cancelling a fired OCO pair
	// is a no-op, not an error.
	errTarget := b.gtts.Cancel(br.TargetGTTID)
	errStop := b.gtts.Cancel(br.StopGTTID)
	if errTarget != nil && errStop != nil {
		return ErrNotActive
	}
	return nil
}

// Get returns one bracket by ID.
func (b *BracketBook) Get(id string) (Bracket, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	br, ok := b.brackets[id]
	if !ok {
		return Bracket{}, false
	}
	return *br, true
}

// List returns all brackets in placement order.
func (b *BracketBook) List() []Bracket {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Bracket, 0, len(b.seq))
	for _, id := range b.seq {
		out = append(out, *b.brackets[id])
	}
	return out
}

func validateBracket(req BracketRequest, price float64) error {
	if req.Quantity <= 0 {
		return fmt.Errorf("paper: quantity must be positive, got %d", req.Quantity)
	}
	if req.Side == model.SideBuy {
		if req.Target <= price {
			return fmt.Errorf("paper: long target %.2f must be above entry %.2f", req.Target, price)
		}
		if req.StopLoss >= price {
			return fmt.Errorf("paper: long stop %.2f must be below entry %.2f", req.StopLoss, price)
		}
	} else {
		if req.Target >= price {
			return fmt.Errorf("paper: short target %.2f must be below entry %.2f", req.Target, price)
		}
		if req.StopLoss <= price {
			return fmt.Errorf("paper: short stop %.2f must be above entry %.2f", req.StopLoss, price)
		}
	}
	return nil
}
