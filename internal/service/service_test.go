package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/motordiag/faultstream/internal/config"
	"github.com/motordiag/faultstream/internal/dispatch"
	"github.com/motordiag/faultstream/internal/schedule"
	"github.com/motordiag/faultstream/internal/telemetry"
	"github.com/motordiag/faultstream/internal/wire"
)

// mockStreamServer serves a WebSocket endpoint running handler per
// connection.
func mockStreamServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
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

func testConfig(streamURL string) *config.MonitorConfig {
	cfg := &config.MonitorConfig{}
	cfg.Instance.ID = "test"
	cfg.Stream.URL = streamURL
	cfg.Stream.HeartbeatInterval = time.Second
	cfg.Stream.HeartbeatTimeout = 5 * time.Second
	cfg.Stream.WriteTimeout = time.Second
	cfg.Stream.ReconnectDelay = 50 * time.Millisecond
	cfg.Stream.BufferSize = 100
	cfg.Stream.MaxBufferSize = 200
	cfg.Store.HistoryCapacity = 5
	cfg.Store.MaxEntities = 10
	cfg.Store.SweepInterval = 50 * time.Millisecond
	cfg.Scheduler.Interval = 30 * time.Millisecond
	cfg.Scheduler.NoticeWindow = 100 * time.Millisecond
	cfg.Scheduler.AckWindow = 30 * time.Millisecond
	cfg.Alerts.ScoreThreshold = 0.8
	cfg.Metrics.Port = 9090
	return cfg
}

func diagnosticFrame(entity string, fault wire.FaultKind, ts int64, score float64) []byte {
	data, _ := json.Marshal(map[string]any{
		"vehicle_id": entity,
		"fault_type": string(fault),
		"timestamp":  ts,
		"score":      score,
		"features":   map[string]float64{"amplitude": 0.42},
	})
	return data
}

// sendFrames serves count diagnostic frames for one entity, then keeps
// the connection open until the client goes away.
func sendFrames(conn *websocket.Conn, frames [][]byte) {
	for _, f := range frames {
		if err := conn.WriteMessage(websocket.TextMessage, f); err != nil {
			return
		}
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestService_IngestsStreamIntoStore(t *testing.T) {
	frames := [][]byte{
		diagnosticFrame("VH-1", wire.FaultBearing, 1000, 0.3),
		diagnosticFrame("VH-1", wire.FaultBearing, 2000, 0.4),
		diagnosticFrame("VH-2", wire.FaultInsulation, 1500, 0.5),
	}
	server := mockStreamServer(t, func(conn *websocket.Conn) {
		sendFrames(conn, frames)
	})
	defer server.Close()

	svc := New(testConfig(wsURL(server)), nil)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer svc.Stop(context.Background())

	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(svc.Entities()) == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	rec, ok := svc.Entity("VH-1")
	if !ok {
		t.Fatal("VH-1 not in store")
	}
	if rec.Latest.Timestamp != 2000 {
		t.Errorf("VH-1 latest timestamp = %d, want 2000", rec.Latest.Timestamp)
	}
	if rec.MessageCount != 2 {
		t.Errorf("VH-1 message count = %d, want 2", rec.MessageCount)
	}
	if _, ok := svc.Entity("VH-2"); !ok {
		t.Error("VH-2 not in store")
	}

	perf := svc.Performance()
	if perf.Received != 3 {
		t.Errorf("received = %d, want 3", perf.Received)
	}
	if perf.Processed != 3 {
		t.Errorf("processed = %d, want 3", perf.Processed)
	}
}

func TestService_UpdatesBatchMutatedEntities(t *testing.T) {
	frames := make([][]byte, 0, 10)
	for i := 0; i < 10; i++ {
		frames = append(frames, diagnosticFrame("VH-1", wire.FaultBearing, int64(1000+i), 0.3))
	}
	server := mockStreamServer(t, func(conn *websocket.Conn) {
		sendFrames(conn, frames)
	})
	defer server.Close()

	svc := New(testConfig(wsURL(server)), nil)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer svc.Stop(context.Background())

	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	select {
	case batch := <-svc.Updates():
		seen := 0
		for _, id := range batch {
			if id == "VH-1" {
				seen++
			}
		}
		if seen != 1 {
			t.Errorf("VH-1 appeared %d times in batch, want 1", seen)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no update batch delivered")
	}
}

func TestService_HighScoreRaisesNotice(t *testing.T) {
	server := mockStreamServer(t, func(conn *websocket.Conn) {
		sendFrames(conn, [][]byte{
			diagnosticFrame("VH-9", wire.FaultRotorBar, 1000, 0.95),
		})
	})
	defer server.Close()

	svc := New(testConfig(wsURL(server)), nil)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer svc.Stop(context.Background())

	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	select {
	case notice := <-svc.Notices():
		if notice.Severity != schedule.SeverityWarning {
			t.Errorf("severity = %q, want %q", notice.Severity, schedule.SeverityWarning)
		}
		want := fmt.Sprintf("%s fault detected on VH-9", wire.FaultRotorBar)
		if notice.Message != want {
			t.Errorf("message = %q, want %q", notice.Message, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no notice delivered")
	}
}

func TestService_StaleFrameCountedNotStored(t *testing.T) {
	server := mockStreamServer(t, func(conn *websocket.Conn) {
		sendFrames(conn, [][]byte{
			diagnosticFrame("VH-1", wire.FaultBearing, 2000, 0.3),
			diagnosticFrame("VH-1", wire.FaultBearing, 1000, 0.9), // older, dropped
		})
	})
	defer server.Close()

	svc := New(testConfig(wsURL(server)), nil)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer svc.Stop(context.Background())

	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if svc.Performance().Received == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	rec, ok := svc.Entity("VH-1")
	if !ok {
		t.Fatal("VH-1 not in store")
	}
	if rec.Latest.Timestamp != 2000 {
		t.Errorf("latest timestamp = %d, want 2000 (stale frame applied)", rec.Latest.Timestamp)
	}

	perf := svc.Performance()
	if perf.Processed != 1 {
		t.Errorf("processed = %d, want 1", perf.Processed)
	}
	if perf.DroppedByReason[telemetry.DropStale] != 1 {
		t.Errorf("stale drops = %d, want 1", perf.DroppedByReason[telemetry.DropStale])
	}
}

func TestService_SubscribersObserveByKind(t *testing.T) {
	server := mockStreamServer(t, func(conn *websocket.Conn) {
		sendFrames(conn, [][]byte{
			diagnosticFrame("VH-1", wire.FaultBearing, 1000, 0.3),
			diagnosticFrame("VH-2", wire.FaultInsulation, 1000, 0.3),
		})
	})
	defer server.Close()

	svc := New(testConfig(wsURL(server)), nil)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer svc.Stop(context.Background())

	bearing := make(chan *wire.DiagnosticEvent, 10)
	sub := svc.On(dispatch.KindOf(wire.FaultBearing), func(ev *wire.DiagnosticEvent) {
		bearing <- ev
	})
	defer sub.Cancel()

	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	select {
	case ev := <-bearing:
		if ev.EntityID != "VH-1" {
			t.Errorf("entity = %q, want VH-1", ev.EntityID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bearing subscriber never invoked")
	}

	select {
	case ev := <-bearing:
		t.Errorf("bearing subscriber saw unexpected event for %q", ev.EntityID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestService_LifecycleGuards(t *testing.T) {
	server := mockStreamServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	svc := New(testConfig(wsURL(server)), nil)

	if err := svc.Stop(context.Background()); err != ErrNotStarted {
		t.Errorf("Stop before Start = %v, want ErrNotStarted", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := svc.Start(context.Background()); err != ErrAlreadyStarted {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
	if err := svc.Stop(context.Background()); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
