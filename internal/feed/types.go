package feed

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/arjunkv/paperdesk/internal/model"
)

// Feed is the tick source consumed by the dispatcher.
type Feed interface {
	// Start begins producing ticks.
	Start(ctx context.Context) error

	// Stop shuts the feed down and closes the tick channel.
	Stop(ctx context.Context) error

	// Ticks returns the output tick channel.
	Ticks() <-chan model.Tick

	// Stats returns feed counters.
	Stats() Stats
}

// Stats contains feed runtime counters.
type Stats struct {
	TicksEmitted int64 `json:"ticks_emitted"`
	ParseErrors  int64 `json:"parse_errors"`
	Reconnects   int64 `json:"reconnects"`
	Connected    bool  `json:"connected"`
}

// Sentinel errors for the WebSocket client.
var (
	ErrNotConnected    = errors.New("feed: not connected")
	ErrAlreadyClosed   = errors.New("feed: client already closed")
	ErrStaleConnection = errors.New("feed: no ping received within timeout")
)

// tickWire is the upstream JSON tick format.
type tickWire struct {
	Type    string  `json:"type"`
	Symbol  string  `json:"symbol"`
	Token   string  `json:"token"`
	LTP     float64 `json:"ltp"`
	Bid     float64 `json:"bid,omitempty"`
	Ask     float64 `json:"ask,omitempty"`
	LastQty int64   `json:"last_qty,omitempty"`
	Volume  int64   `json:"volume,omitempty"`
	TS      int64   `json:"ts"` // Exchange timestamp, unix milliseconds
}

// subscribeCmd is the upstream subscription command.
type subscribeCmd struct {
	Action string   `json:"action"` // "subscribe" or "unsubscribe"
	Tokens []string `json:"tokens"`
}

func marshalSubscribe(action string, tokens []string) []byte {
	data, _ := json.Marshal(subscribeCmd{Action: action, Tokens: tokens})
	return data
}

// TimestampedMessage is a raw frame with its local receive time.
type TimestampedMessage struct {
	Data       []byte
	ReceivedAt time.Time
}
