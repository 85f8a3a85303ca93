package feed

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arjunkv/paperdesk/internal/config"
	"github.com/arjunkv/paperdesk/internal/model"
)

func testFeedConfig(url string) config.FeedConfig {
	return config.FeedConfig{
		Mode:               "live",
		URL:                url,
		ReconnectBaseDelay: 10 * time.Millisecond,
		ReconnectMaxDelay:  50 * time.Millisecond,
		ReadTimeout:        30 * time.Second,
		BufferSize:         100,
		Symbols: []config.SymbolConfig{
			{Symbol: "SBIN-EQ", Token: "3045", Exchange: "NSE"},
		},
	}
}

func TestLiveFeedSubscribesAndParses(t *testing.T) {
	gotSub := make(chan subscribeCmd, 1)

	server := mockWSServer(t, func(conn *websocket.Conn) {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd subscribeCmd
		json.Unmarshal(msg, &cmd)
		gotSub <- cmd

		tick := `{"type":"tick","symbol":"SBIN-EQ","token":"3045","ltp":802.4,"last_qty":25,"volume":1000,"ts":1752550500000}`
		conn.WriteMessage(websocket.TextMessage, []byte(tick))
		// Non-tick frames are skipped.
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ack"}`))
		time.Sleep(time.Second)
	})
	defer server.Close()

	f := NewLiveFeed(testFeedConfig(wsURL(server)), nil)
	if err := f.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	select {
	case cmd := <-gotSub:
		if cmd.Action != "subscribe" || len(cmd.Tokens) != 1 || cmd.Tokens[0] != "3045" {
			t.Errorf("subscribe = %+v", cmd)
		}
	case <-time.After(time.Second):
		t.Fatal("no subscribe command received")
	}

	select {
	case tick := <-f.Ticks():
		if tick.Symbol != "SBIN-EQ" || tick.LTP != 802.4 || tick.LastQty != 25 {
			t.Errorf("tick = %+v", tick)
		}
		if tick.ExchangeTS.UnixMilli() != 1752550500000 {
			t.Errorf("ExchangeTS = %v", tick.ExchangeTS)
		}
	case <-time.After(time.Second):
		t.Fatal("no tick received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := f.Stop(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestLiveFeedReconnects(t *testing.T) {
	conns := make(chan struct{}, 4)

	server := mockWSServer(t, func(conn *websocket.Conn) {
		conns <- struct{}{}
		// Read the subscribe then drop the connection to force a reconnect.
		conn.ReadMessage()
		conn.Close()
	})
	defer server.Close()

	f := NewLiveFeed(testFeedConfig(wsURL(server)), nil)
	if err := f.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	// At least two connections means a reconnect happened.
	for i := 0; i < 2; i++ {
		select {
		case <-conns:
		case <-time.After(2 * time.Second):
			t.Fatalf("connection %d never arrived", i+1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f.Stop(ctx)

	if f.Stats().Reconnects < 1 {
		t.Errorf("Reconnects = %d, want >= 1", f.Stats().Reconnects)
	}
}

func TestLiveFeedStopTimeoutLeavesOutputOpen(t *testing.T) {
	f := NewLiveFeed(testFeedConfig("ws://unused"), nil)
	f.ctx, f.cancel = context.WithCancel(context.Background())

	// Hold the run loop open so Stop cannot drain it before its deadline.
	block := make(chan struct{})
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		<-block
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.Stop(ctx); err != nil {
		t.Fatal(err)
	}

	// A straggling reader may still emit after a timed-out stop; the
	// output must not have been closed under it.
	f.out <- model.Tick{Symbol: "SBIN-EQ", LTP: 800}

	close(block)
	f.wg.Wait()

	tick, ok := <-f.Ticks()
	if !ok || tick.Symbol != "SBIN-EQ" {
		t.Errorf("tick = %+v, ok = %v", tick, ok)
	}
}

func TestWithJitterBounds(t *testing.T) {
	d := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		got := withJitter(d)
		if got < d*3/4 || got > d*5/4 {
			t.Fatalf("withJitter(%v) = %v, outside ±25%%", d, got)
		}
	}
}
