package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arjunkv/paperdesk/internal/model"
	"github.com/arjunkv/paperdesk/internal/paper"
)

// marks returns last prices from the dispatcher for valuation.
func (s *Server) marks() map[string]float64 {
	if s.deps.Dispatcher == nil {
		return nil
	}
	return s.deps.Dispatcher.LastPrices()
}

// lastPrice resolves the current price for a symbol, required before
// accepting any order.
func (s *Server) lastPrice(symbol string) (float64, error) {
	if s.deps.Dispatcher == nil {
		return 0, errors.New("no market data source")
	}
	tick, ok := s.deps.Dispatcher.LastTick(symbol)
	if !ok {
		return 0, fmt.Errorf("no market price for %s", symbol)
	}
	return tick.LTP, nil
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Portfolio.Snapshot(s.marks()))
}

func (s *Server) handlePortfolioReset(w http.ResponseWriter, r *http.Request) {
	s.deps.Portfolio.Reset()
	writeJSON(w, http.StatusOK, s.deps.Portfolio.Snapshot(s.marks()))
}

func (s *Server) handleSquareOff(w http.ResponseWriter, r *http.Request) {
	orders := s.deps.Portfolio.SquareOffAll(s.marks(), "square_off")
	writeJSON(w, http.StatusOK, map[string]any{
		"squared_off": len(orders),
		"orders":      orders,
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Portfolio.Positions())
}

func (s *Server) handleFills(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Portfolio.Fills())
}

// placeOrderRequest is the wire form of an order.
type placeOrderRequest struct {
	Symbol       string            `json:"symbol"`
	Side         model.Side        `json:"side"`
	Type         model.OrderType   `json:"type"`
	Product      model.ProductType `json:"product"`
	Quantity     int64             `json:"quantity"`
	LimitPrice   float64           `json:"limit_price,omitempty"`
	TriggerPrice float64           `json:"trigger_price,omitempty"`
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err)
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	price, err := s.lastPrice(req.Symbol)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	order, err := s.deps.Portfolio.Submit(paper.OrderRequest{
		Symbol:       req.Symbol,
		Side:         req.Side,
		Type:         req.Type,
		Product:      req.Product,
		Quantity:     req.Quantity,
		LimitPrice:   req.LimitPrice,
		TriggerPrice: req.TriggerPrice,
		Source:       "api",
	}, price)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": err.Error(),
			"order": order,
		})
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Portfolio.Orders())
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := s.deps.Portfolio.Order(chi.URLParam(r, "id"))
	if !ok {
		notFound(w, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Portfolio.CancelOrder(chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, paper.ErrUnknownOrder):
		notFound(w, "order not found")
	case errors.Is(err, paper.ErrNotOpen):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	}
}

// placeGTTRequest is the wire form of a GTT trigger.
type placeGTTRequest struct {
	Symbol       string             `json:"symbol"`
	Condition    model.GTTCondition `json:"condition"`
	TriggerPrice float64            `json:"trigger_price"`
	Side         model.Side         `json:"side"`
	Quantity     int64              `json:"quantity"`
	Product      model.ProductType  `json:"product"`
}

func (r placeGTTRequest) toRequest() paper.GTTRequest {
	return paper.GTTRequest{
		Symbol:       r.Symbol,
		Condition:    r.Condition,
		TriggerPrice: r.TriggerPrice,
		Side:         r.Side,
		Quantity:     r.Quantity,
		Product:      r.Product,
		Source:       "gtt",
	}
}

func (r placeGTTRequest) validate() error {
	if r.Symbol == "" {
		return errors.New("symbol is required")
	}
	if r.Quantity <= 0 {
		return errors.New("quantity must be positive")
	}
	if r.TriggerPrice <= 0 {
		return errors.New("trigger_price must be positive")
	}
	return nil
}

func (s *Server) handlePlaceGTT(w http.ResponseWriter, r *http.Request) {
	var req placeGTTRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err)
		return
	}
	if err := req.validate(); err != nil {
		badRequest(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.deps.GTTs.Add(req.toRequest()))
}

func (s *Server) handlePlaceOCO(w http.ResponseWriter, r *http.Request) {
	var req struct {
		First  placeGTTRequest `json:"first"`
		Second placeGTTRequest `json:"second"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err)
		return
	}
	if err := req.First.validate(); err != nil {
		badRequest(w, fmt.Errorf("first leg: %w", err))
		return
	}
	if err := req.Second.validate(); err != nil {
		badRequest(w, fmt.Errorf("second leg: %w", err))
		return
	}

	first, second := s.deps.GTTs.AddOCO(req.First.toRequest(), req.Second.toRequest())
	writeJSON(w, http.StatusCreated, map[string]any{"first": first, "second": second})
}

func (s *Server) handleListGTT(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("active") == "true" {
		writeJSON(w, http.StatusOK, s.deps.GTTs.Active())
		return
	}
	writeJSON(w, http.StatusOK, s.deps.GTTs.List())
}

func (s *Server) handleCancelGTT(w http.ResponseWriter, r *http.Request) {
	err := s.deps.GTTs.Cancel(chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, paper.ErrUnknownGTT):
		notFound(w, "gtt not found")
	case errors.Is(err, paper.ErrNotActive):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	}
}

// placeBracketRequest is the wire form of a bracket order.
type placeBracketRequest struct {
	Symbol   string            `json:"symbol"`
	Side     model.Side        `json:"side"`
	Quantity int64             `json:"quantity"`
	Product  model.ProductType `json:"product"`
	Target   float64           `json:"target"`
	StopLoss float64           `json:"stop_loss"`
}

func (s *Server) handlePlaceBracket(w http.ResponseWriter, r *http.Request) {
	var req placeBracketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err)
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	price, err := s.lastPrice(req.Symbol)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	bracket, err := s.deps.Brackets.Place(paper.BracketRequest{
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: req.Quantity,
		Product:  req.Product,
		Target:   req.Target,
		StopLoss: req.StopLoss,
		Source:   "bracket",
	}, price)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, bracket)
}

func (s *Server) handleListBrackets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Brackets.List())
}

// modifyBracketRequest re-prices the stop-loss leg.
type modifyBracketRequest struct {
	StopLoss float64 `json:"stop_loss"`
}

func (s *Server) handleModifyBracket(w http.ResponseWriter, r *http.Request) {
	var req modifyBracketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err)
		return
	}
	if req.StopLoss <= 0 {
		writeError(w, http.StatusBadRequest, "stop_loss must be positive")
		return
	}

	bracket, err := s.deps.Brackets.ModifySL(chi.URLParam(r, "id"), req.StopLoss)
	switch {
	case errors.Is(err, paper.ErrUnknownBracket):
		notFound(w, "bracket not found")
	case errors.Is(err, paper.ErrNotActive):
		writeError(w, http.StatusConflict, "stop leg is no longer active")
	case err != nil:
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeJSON(w, http.StatusOK, bracket)
	}
}

func (s *Server) handleCancelBracket(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Brackets.Cancel(chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, paper.ErrUnknownBracket):
		notFound(w, "bracket not found")
	case err != nil:
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	}
}
