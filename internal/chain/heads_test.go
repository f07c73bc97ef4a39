package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func headNotification(n string) map[string]interface{} {
	return map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "eth_subscription",
		"params": map[string]interface{}{
			"subscription": "0xsub",
			"result":       map[string]interface{}{"number": n},
		},
	}
}

func TestHeadSubscriber_ReceivesLatestHead(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return
		}
		if req.Method != "eth_subscribe" {
			t.Errorf("expected eth_subscribe, got %s", req.Method)
		}

		_ = c.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": "0xsub"})
		_ = c.WriteJSON(headNotification("0x10"))
		_ = c.WriteJSON(headNotification("0x11"))

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	sub := NewHeadSubscriber("ws"+strings.TrimPrefix(server.URL, "http"), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	var last uint64
	for last != 0x11 {
		select {
		case last = <-sub.Heads():
		case <-deadline:
			t.Fatalf("timeout waiting for head, last=%d", last)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestHeadSubscriber_Reconnects(t *testing.T) {
	var conns atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		n := conns.Add(1)
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
		if n == 1 {
			// Drop the first connection without sending anything.
			return
		}
		_ = c.WriteJSON(headNotification("0x2a"))
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	cfg := DefaultHeadsConfig()
	cfg.ReconnectDelay = 10 * time.Millisecond
	sub := NewHeadSubscriber("ws"+strings.TrimPrefix(server.URL, "http"), &cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sub.Run(ctx) }()

	select {
	case n := <-sub.Heads():
		if n != 42 {
			t.Errorf("expected head 42, got %d", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for head after reconnect")
	}
	if conns.Load() < 2 {
		t.Errorf("expected reconnect, got %d connections", conns.Load())
	}
}

func TestHeadSubscriber_PublishKeepsLatest(t *testing.T) {
	sub := NewHeadSubscriber("ws://unused", nil, nil)
	sub.publish(1)
	sub.publish(2)
	sub.publish(3)
	if got := <-sub.Heads(); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
}
