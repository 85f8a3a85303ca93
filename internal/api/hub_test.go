package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arjunkv/paperdesk/internal/model"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(hub.handleWS))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.After(time.Second)
	for hub.ClientCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("client never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) streamFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var frame streamFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatal(err)
	}
	return frame
}

func TestHubDefaultTickSubscription(t *testing.T) {
	hub := NewHub(nil)
	conn := dialHub(t, hub)

	hub.BroadcastTick(model.Tick{Symbol: "SBIN-EQ", LTP: 800, Volume: 1000, ExchangeTS: time.Now()})

	frame := readFrame(t, conn)
	if frame.Channel != ChannelTicks {
		t.Fatalf("channel = %s, want ticks", frame.Channel)
	}
	data := frame.Data.(map[string]any)
	if data["symbol"] != "SBIN-EQ" || data["ltp"].(float64) != 800 {
		t.Errorf("tick frame = %+v", data)
	}
}

func TestHubSubscribeBars(t *testing.T) {
	hub := NewHub(nil)
	conn := dialHub(t, hub)

	cmd, _ := json.Marshal(streamCommand{Action: "subscribe", Channels: []string{ChannelBars, ChannelSignals}})
	if err := conn.WriteMessage(websocket.TextMessage, cmd); err != nil {
		t.Fatal(err)
	}

	// Bars are not delivered until the subscribe is processed; poll by
	// rebroadcasting.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	done := make(chan streamFrame, 1)
	go func() {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame streamFrame
		if json.Unmarshal(data, &frame) == nil {
			done <- frame
		}
	}()

	deadline := time.After(time.Second)
	var frame streamFrame
	var got bool
	for !got {
		hub.BroadcastBar(model.Bar{
			Symbol: "SBIN-EQ", Interval: time.Minute,
			Start: time.Now(), Open: 800, High: 801, Low: 799, Close: 800, Volume: 500,
		})
		select {
		case frame = <-done:
			got = true
		case <-deadline:
			t.Fatal("bar frame never arrived")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if frame.Channel != ChannelBars {
		t.Fatalf("channel = %s, want bars", frame.Channel)
	}
	data := frame.Data.(map[string]any)
	if data["interval"] != "1m0s" || data["close"].(float64) != 800 {
		t.Errorf("bar frame = %+v", data)
	}
}

func TestHubIgnoresUnsubscribedChannels(t *testing.T) {
	hub := NewHub(nil)
	conn := dialHub(t, hub)

	// Default subscription is ticks only.
	hub.BroadcastSignal(model.Signal{StrategyID: "s1", Symbol: "SBIN-EQ", Action: model.ActionBuy, At: time.Now()})
	hub.BroadcastTick(model.Tick{Symbol: "SBIN-EQ", LTP: 800, ExchangeTS: time.Now()})

	frame := readFrame(t, conn)
	if frame.Channel != ChannelTicks {
		t.Errorf("first frame channel = %s, want ticks (signal should be skipped)", frame.Channel)
	}
}

func TestHubStopDisconnectsClients(t *testing.T) {
	hub := NewHub(nil)
	conn := dialHub(t, hub)

	if err := hub.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("clients = %d after stop", hub.ClientCount())
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return // Connection closed as expected
		}
	}
}
