package connection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestClient_ConnectClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(ClientConfig{
		URL:          wsURL(server),
		WriteTimeout: 5 * time.Second,
		BufferSize:   100,
	}, nil)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !client.IsConnected() {
		t.Error("expected IsConnected true after Connect")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if client.IsConnected() {
		t.Error("expected IsConnected false after Close")
	}

	// Close is idempotent.
	if err := client.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestClient_ConnectAfterCloseFails(t *testing.T) {
	client := NewClient(ClientConfig{URL: "ws://127.0.0.1:1"}, nil)
	client.Close()

	if err := client.Connect(context.Background()); err != ErrAlreadyClosed {
		t.Errorf("Connect after Close = %v, want ErrAlreadyClosed", err)
	}
}

func TestClient_Send(t *testing.T) {
	var mu sync.Mutex
	var received []byte

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			received = msg
			mu.Unlock()
		}
	})
	defer server.Close()

	client := NewClient(ClientConfig{
		URL:          wsURL(server),
		WriteTimeout: 5 * time.Second,
		BufferSize:   100,
	}, nil)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	if err := client.Send([]byte(`{"type":"heartbeat","timestamp":1}`)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if string(received) != `{"type":"heartbeat","timestamp":1}` {
		t.Errorf("server received %q", received)
	}
}

func TestClient_SendWhenDisconnected(t *testing.T) {
	client := NewClient(ClientConfig{URL: "ws://127.0.0.1:1"}, nil)

	if err := client.Send([]byte("x")); err != ErrNotConnected {
		t.Errorf("Send = %v, want ErrNotConnected", err)
	}
}

func TestClient_ReceivesMessages(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"a":1}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"a":2}`))
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	client := NewClient(ClientConfig{
		URL:          wsURL(server),
		WriteTimeout: 5 * time.Second,
		BufferSize:   10,
	}, nil)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	for i := 1; i <= 2; i++ {
		select {
		case msg := <-client.Messages():
			if len(msg.Data) == 0 {
				t.Error("empty message data")
			}
			if msg.ReceivedAt.IsZero() {
				t.Error("message missing receive timestamp")
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestClient_ErrorOnServerClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Drop the connection abruptly.
		conn.Close()
	})
	defer server.Close()

	client := NewClient(ClientConfig{
		URL:          wsURL(server),
		WriteTimeout: 5 * time.Second,
		BufferSize:   10,
	}, nil)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	select {
	case err := <-client.Errors():
		if err == nil {
			t.Error("expected non-nil connection error")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for connection error")
	}
}
