package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arjunkv/paperdesk/internal/metrics"
	"github.com/arjunkv/paperdesk/internal/model"
)

// Stream channels clients can subscribe to.
const (
	ChannelTicks   = "ticks"
	ChannelBars    = "bars"
	ChannelSignals = "signals"
	ChannelFills   = "fills"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	sendBufferSize = 256
)

// streamFrame is the envelope for every outbound message.
type streamFrame struct {
	Channel string `json:"channel"`
	Data    any    `json:"data"`
}

// streamCommand is the inbound subscribe/unsubscribe message.
type streamCommand struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

type tickFrame struct {
	Symbol string  `json:"symbol"`
	LTP    float64 `json:"ltp"`
	Volume int64   `json:"volume"`
	TS     int64   `json:"ts"` // Exchange time, unix millis
}

type barFrame struct {
	Symbol   string  `json:"symbol"`
	Interval string  `json:"interval"`
	Start    int64   `json:"start"` // Unix millis
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   int64   `json:"volume"`
}

type signalFrame struct {
	Strategy string  `json:"strategy"`
	Symbol   string  `json:"symbol"`
	Action   string  `json:"action"`
	Price    float64 `json:"price"`
	Reason   string  `json:"reason,omitempty"`
	TS       int64   `json:"ts"`
}

type fillFrame struct {
	OrderID  string  `json:"order_id"`
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Quantity int64   `json:"quantity"`
	Price    float64 `json:"price"`
	PnL      float64 `json:"pnl"`
	TS       int64   `json:"ts"`
}

// wsClient is one connected stream consumer.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte

	mu       sync.Mutex
	channels map[string]bool
}

func (c *wsClient) subscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels[channel]
}

func (c *wsClient) setChannels(channels []string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		switch ch {
		case ChannelTicks, ChannelBars, ChannelSignals, ChannelFills:
			if on {
				c.channels[ch] = true
			} else {
				delete(c.channels, ch)
			}
		}
	}
}

// Hub fans events out to WebSocket stream clients. Slow clients are
// disconnected rather than allowed to stall the broadcast path.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

// NewHub creates an empty stream hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Token auth happens in the HTTP middleware.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// Stop disconnects every client.
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		close(c.send)
	}
	metrics.StreamClients.Set(0)
	h.logger.Info("stream hub stopped", "disconnected", len(clients))
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// handleWS upgrades the connection and serves the stream.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		channels: map[string]bool{ChannelTicks: true}, // Default subscription
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	metrics.StreamClients.Set(float64(count))
	h.logger.Info("stream client connected", "remote", conn.RemoteAddr().String(), "clients", count)

	go h.writePump(client)
	go h.readPump(client)
}

func (h *Hub) remove(client *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(client.send)
		metrics.StreamClients.Set(float64(count))
		h.logger.Info("stream client disconnected", "clients", count)
	}
}

// readPump consumes subscription commands until the client goes away.
func (h *Hub) readPump(client *wsClient) {
	defer func() {
		h.remove(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(4096)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd streamCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		switch cmd.Action {
		case "subscribe":
			client.setChannels(cmd.Channels, true)
		case "unsubscribe":
			client.setChannels(cmd.Channels, false)
		}
	}
}

// writePump drains the send buffer and keeps the connection alive.
func (h *Hub) writePump(client *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// broadcast sends a frame to every client subscribed to the channel.
// Clients with a full send buffer are dropped.
func (h *Hub) broadcast(channel string, data any) {
	payload, err := json.Marshal(streamFrame{Channel: channel, Data: data})
	if err != nil {
		return
	}

	h.mu.Lock()
	var stalled []*wsClient
	for client := range h.clients {
		if !client.subscribed(channel) {
			continue
		}
		select {
		case client.send <- payload:
		default:
			stalled = append(stalled, client)
		}
	}
	h.mu.Unlock()

	for _, client := range stalled {
		h.logger.Warn("dropping stalled stream client")
		h.remove(client)
	}
}

// BroadcastTick publishes a tick to the ticks channel.
func (h *Hub) BroadcastTick(tick model.Tick) {
	h.broadcast(ChannelTicks, tickFrame{
		Symbol: tick.Symbol,
		LTP:    tick.LTP,
		Volume: tick.Volume,
		TS:     tick.ExchangeTS.UnixMilli(),
	})
}

// BroadcastBar publishes a closed bar to the bars channel.
func (h *Hub) BroadcastBar(bar model.Bar) {
	h.broadcast(ChannelBars, barFrame{
		Symbol:   bar.Symbol,
		Interval: bar.Interval.String(),
		Start:    bar.Start.UnixMilli(),
		Open:     bar.Open,
		High:     bar.High,
		Low:      bar.Low,
		Close:    bar.Close,
		Volume:   bar.Volume,
	})
}

// BroadcastSignal publishes a strategy signal to the signals channel.
func (h *Hub) BroadcastSignal(sig model.Signal) {
	h.broadcast(ChannelSignals, signalFrame{
		Strategy: sig.StrategyID,
		Symbol:   sig.Symbol,
		Action:   sig.Action.String(),
		Price:    sig.Price,
		Reason:   sig.Reason,
		TS:       sig.At.UnixMilli(),
	})
}

// BroadcastFill publishes an executed fill to the fills channel.
func (h *Hub) BroadcastFill(fill model.Fill) {
	h.broadcast(ChannelFills, fillFrame{
		OrderID:  fill.OrderID,
		Symbol:   fill.Symbol,
		Side:     fill.Side.String(),
		Quantity: fill.Quantity,
		Price:    fill.Price,
		PnL:      fill.PnL,
		TS:       fill.FilledAt.UnixMilli(),
	})
}
