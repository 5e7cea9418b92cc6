package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(zap.NewNop())
	hub.SetInitDataProvider(func() *InitData {
		return &InitData{Locations: []string{"Home"}, Cameras: []string{"Front Door"}}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Serve(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Attach(conn)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() Message {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	}

	if msg := read(); msg.Type != MsgTypeInit {
		t.Fatalf("first message type = %s, want init", msg.Type)
	}

	// 等待注册完成
	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	hub.BroadcastMessage(MsgTypeNotification, map[string]string{"camera": "Front Door"})

	msg := read()
	if msg.Type != MsgTypeNotification {
		t.Fatalf("message type = %s, want notification", msg.Type)
	}
	data, ok := msg.Data.(map[string]interface{})
	if !ok || data["camera"] != "Front Door" {
		t.Errorf("data = %v", msg.Data)
	}
}

func TestHubServeStopsOnCancel(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestHubDisconnectsSlowClient(t *testing.T) {
	hub := NewHub(zap.NewNop())
	s := &subscriber{out: make(chan []byte, 1)}
	hub.add(s)

	hub.deliver([]byte("first"))
	hub.deliver([]byte("second"))

	if n := hub.ClientCount(); n != 0 {
		t.Fatalf("clients = %d, want 0", n)
	}
	if msg, ok := <-s.out; !ok || string(msg) != "first" {
		t.Errorf("buffered = %q, %v", msg, ok)
	}
	if _, ok := <-s.out; ok {
		t.Error("out should be closed")
	}

	// 已移除的订阅者再次注销不会重复 close
	if n := hub.remove(s); n != 0 {
		t.Errorf("clients = %d, want 0", n)
	}
}

func TestHubClosesClientsOnStop(t *testing.T) {
	hub := NewHub(zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Serve(ctx)
		close(done)
	}()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Attach(conn)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatal("client not registered")
	}

	cancel()
	<-done

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read err = %v, want going away close", err)
	}
}
