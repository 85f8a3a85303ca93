package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/arjunkv/paperdesk/internal/config"
	"github.com/arjunkv/paperdesk/internal/metrics"
	"github.com/arjunkv/paperdesk/internal/model"
	"github.com/arjunkv/paperdesk/internal/paper"
)

// Manager errors.
var (
	ErrUnknownStrategy = errors.New("strategy: unknown instance")
	ErrDuplicateName   = errors.New("strategy: duplicate instance name")
)

// recentSignals bounds the per-instance signal log.
const recentSignals = 100

// OrderPlacer executes strategy signals. Satisfied by *paper.Portfolio.
type OrderPlacer interface {
	Submit(req paper.OrderRequest, price float64) (model.Order, error)
	Position(symbol string) (model.Position, bool)
}

// Gate approves an order before placement. Implemented by the risk
// sizer, circuit breakers and the compliance throttle.
type Gate interface {
	Approve(symbol string, side model.Side, qty int64, price float64) error
}

// GateFunc adapts a function to the Gate interface.
type GateFunc func(symbol string, side model.Side, qty int64, price float64) error

// Approve implements Gate.
func (f GateFunc) Approve(symbol string, side model.Side, qty int64, price float64) error {
	return f(symbol, side, qty, price)
}

// State is the run state of a strategy instance.
type State uint8

const (
	StateStopped State = iota
	StateRunning
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	}
	return "stopped"
}

func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// instance is one managed strategy with its run state and counters.
type instance struct {
	strat Strategy
	cfg   config.StrategyConfig

	state     State
	barsSeen  int64
	fired     int64
	orders    int64
	lastError string
	signals   []model.Signal
}

// InstanceStatus is the API view of a strategy instance.
type InstanceStatus struct {
	Name      string        `json:"name"`
	Kind      string        `json:"kind"`
	Symbol    string        `json:"symbol"`
	Interval  time.Duration `json:"interval"`
	Quantity  int64         `json:"quantity"`
	State     State         `json:"state"`
	Warmup    int           `json:"warmup"`
	BarsSeen  int64         `json:"bars_seen"`
	Signals   int64         `json:"signals"`
	Orders    int64         `json:"orders"`
	LastError string        `json:"last_error,omitempty"`
}

// Manager owns strategy instances and drives them from the bar stream.
type Manager struct {
	logger *slog.Logger
	exec   OrderPlacer
	gates  []Gate

	// onSignal, when set, receives every emitted signal. Used to feed
	// the streaming hub.
	onSignal func(model.Signal)

	mu        sync.RWMutex
	instances map[string]*instance

	input  <-chan model.Bar
	ticks  <-chan model.Tick
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager that consumes bars from input and places
// orders through exec after every gate approves.
func NewManager(input <-chan model.Bar, exec OrderPlacer, gates []Gate, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:    logger,
		exec:      exec,
		gates:     gates,
		instances: make(map[string]*instance),
		input:     input,
	}
}

// SetSignalSink registers a callback for emitted signals. Must be set
// before Start.
func (m *Manager) SetSignalSink(fn func(model.Signal)) {
	m.onSignal = fn
}

// SetTickInput registers a raw tick stream for tick-reactive strategies.
// Must be set before Start.
func (m *Manager) SetTickInput(ticks <-chan model.Tick) {
	m.ticks = ticks
}

// Add registers a strategy instance from config. Autostart instances
// begin running immediately.
func (m *Manager) Add(cfg config.StrategyConfig) error {
	strat, err := New(cfg)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.instances[cfg.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateName, cfg.Name)
	}

	inst := &instance{strat: strat, cfg: cfg}
	if cfg.Autostart {
		inst.state = StateRunning
		strat.OnStart()
	}
	m.instances[cfg.Name] = inst

	m.logger.Info("strategy registered",
		"name", cfg.Name,
		"kind", cfg.Kind,
		"symbol", cfg.Symbol,
		"interval", cfg.Interval,
		"autostart", cfg.Autostart,
	)
	return nil
}

// Start begins consuming bars and, when a tick input is set, ticks.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.consumeLoop()

	if m.ticks != nil {
		m.wg.Add(1)
		go m.tickLoop()
	}

	m.logger.Info("strategy manager started", "instances", len(m.instances))
	return nil
}

// Stop halts bar consumption.
func (m *Manager) Stop(ctx context.Context) error {
	m.logger.Info("stopping strategy manager")

	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("strategy manager stopped")
	case <-ctx.Done():
		m.logger.Warn("strategy manager stop timed out")
	}
	return nil
}

func (m *Manager) consumeLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case bar, ok := <-m.input:
			if !ok {
				return
			}
			m.dispatch(bar)
		}
	}
}

// dispatch routes one closed bar to every running instance that trades
// its symbol and interval.
func (m *Manager) dispatch(bar model.Bar) {
	m.mu.Lock()
	var targets []*instance
	for _, inst := range m.instances {
		if inst.strat.Symbol() != bar.Symbol || inst.strat.Interval() != bar.Interval {
			continue
		}
		if inst.state != StateRunning {
			// Paused instances keep their indicators warm.
			if inst.state == StatePaused {
				inst.strat.OnBar(bar)
				inst.barsSeen++
			}
			continue
		}
		inst.barsSeen++
		targets = append(targets, inst)
	}
	m.mu.Unlock()

	for _, inst := range targets {
		sig, ok := inst.strat.OnBar(bar)
		if !ok {
			continue
		}
		m.emit(inst, sig)
	}
}

func (m *Manager) tickLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case tick, ok := <-m.ticks:
			if !ok {
				return
			}
			m.dispatchTick(tick)
		}
	}
}

// dispatchTick routes one tick to every running instance that trades its
// symbol. Paused instances see the tick but their signals are discarded.
func (m *Manager) dispatchTick(tick model.Tick) {
	m.mu.Lock()
	var targets []*instance
	for _, inst := range m.instances {
		if inst.strat.Symbol() != tick.Symbol {
			continue
		}
		switch inst.state {
		case StateRunning:
			targets = append(targets, inst)
		case StatePaused:
			inst.strat.OnTick(tick)
		}
	}
	m.mu.Unlock()

	for _, inst := range targets {
		sig, ok := inst.strat.OnTick(tick)
		if !ok {
			continue
		}
		m.emit(inst, sig)
	}
}

func (m *Manager) emit(inst *instance, sig model.Signal) {
	metrics.RecordSignal(sig.StrategyID, sig.Action.String())

	m.mu.Lock()
	inst.fired++
	inst.signals = append(inst.signals, sig)
	if len(inst.signals) > recentSignals {
		inst.signals = inst.signals[len(inst.signals)-recentSignals:]
	}
	m.mu.Unlock()

	m.logger.Info("signal",
		"strategy", sig.StrategyID,
		"symbol", sig.Symbol,
		"action", sig.Action.String(),
		"price", sig.Price,
		"reason", sig.Reason,
	)

	if m.onSignal != nil {
		m.onSignal(sig)
	}
	if sig.Action == model.ActionHold {
		return
	}
	m.execute(inst, sig)
}

func (m *Manager) execute(inst *instance, sig model.Signal) {
	var req paper.OrderRequest
	switch sig.Action {
	case model.ActionBuy:
		req = paper.OrderRequest{
			Symbol:     sig.Symbol,
			Side:       model.SideBuy,
			Type:       model.OrderMarket,
			Product:    model.ProductIntraday,
			Quantity:   inst.cfg.Quantity,
			Source:     "strategy",
			StrategyID: sig.StrategyID,
		}
	case model.ActionSell:
		pos, ok := m.exec.Position(sig.Symbol)
		if !ok {
			m.setError(inst, "sell signal with no open position")
			return
		}
		req = paper.OrderRequest{
			Symbol:     sig.Symbol,
			Side:       model.SideSell,
			Type:       model.OrderMarket,
			Product:    pos.Product,
			Quantity:   pos.Quantity,
			Source:     "strategy",
			StrategyID: sig.StrategyID,
		}
	}

	for _, gate := range m.gates {
		if err := gate.Approve(req.Symbol, req.Side, req.Quantity, sig.Price); err != nil {
			m.setError(inst, err.Error())
			m.logger.Warn("order blocked",
				"strategy", sig.StrategyID,
				"symbol", req.Symbol,
				"error", err,
			)
			return
		}
	}

	order, err := m.exec.Submit(req, sig.Price)
	if err != nil {
		m.setError(inst, err.Error())
		return
	}

	m.mu.Lock()
	inst.orders++
	inst.lastError = ""
	m.mu.Unlock()

	m.logger.Info("strategy order placed",
		"strategy", sig.StrategyID,
		"order_id", order.ID,
		"side", order.Side.String(),
		"qty", order.Quantity,
	)
}

func (m *Manager) setError(inst *instance, msg string) {
	m.mu.Lock()
	inst.lastError = msg
	m.mu.Unlock()
}

// setState transitions one instance.
func (m *Manager) setState(name string, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	if inst.state == state {
		return nil
	}
	prev := inst.state
	inst.state = state

	switch {
	case prev == StateStopped && state == StateRunning:
		inst.strat.OnStart()
	case state == StateStopped:
		inst.strat.OnStop()
	}

	m.logger.Info("strategy state changed", "name", name, "state", state.String())
	return nil
}

// StartInstance begins trading for one instance.
func (m *Manager) StartInstance(name string) error { return m.setState(name, StateRunning) }

// PauseInstance keeps indicators warm but suppresses signals.
func (m *Manager) PauseInstance(name string) error { return m.setState(name, StatePaused) }

// ResumeInstance resumes a paused instance.
func (m *Manager) ResumeInstance(name string) error { return m.setState(name, StateRunning) }

// StopInstance halts an instance entirely.
func (m *Manager) StopInstance(name string) error { return m.setState(name, StateStopped) }

// StopAll halts every instance. Used by the kill switch.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, inst := range m.instances {
		if inst.state != StateStopped {
			inst.state = StateStopped
			inst.strat.OnStop()
			m.logger.Info("strategy stopped", "name", name)
		}
	}
}

// Status returns the state of one instance.
func (m *Manager) Status(name string) (InstanceStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst, ok := m.instances[name]
	if !ok {
		return InstanceStatus{}, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	return statusOf(inst), nil
}

// List returns all instances sorted by name.
func (m *Manager) List() []InstanceStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]InstanceStatus, 0, len(m.instances))
	for _, inst := range m.instances {
		out = append(out, statusOf(inst))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Signals returns the recent signal log for one instance.
func (m *Manager) Signals(name string) ([]model.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst, ok := m.instances[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	return append([]model.Signal(nil), inst.signals...), nil
}

func statusOf(inst *instance) InstanceStatus {
	return InstanceStatus{
		Name:      inst.cfg.Name,
		Kind:      inst.strat.Kind(),
		Symbol:    inst.strat.Symbol(),
		Interval:  inst.strat.Interval(),
		Quantity:  inst.cfg.Quantity,
		State:     inst.state,
		Warmup:    inst.strat.Warmup(),
		BarsSeen:  inst.barsSeen,
		Signals:   inst.fired,
		Orders:    inst.orders,
		LastError: inst.lastError,
	}
}
