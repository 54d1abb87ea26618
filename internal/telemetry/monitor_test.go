package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMonitor_Counters(t *testing.T) {
	m := New(time.Second, nil)

	for i := 0; i < 10; i++ {
		m.FrameReceived()
	}
	for i := 0; i < 7; i++ {
		m.FrameProcessed(2 * time.Millisecond)
	}
	m.FrameDropped(DropStale)
	m.FrameDropped(DropStale)
	m.FrameDropped(DropParse)

	snap := m.Sample()

	if snap.Received != 10 {
		t.Errorf("Received = %d, want 10", snap.Received)
	}
	if snap.Processed != 7 {
		t.Errorf("Processed = %d, want 7", snap.Processed)
	}
	if snap.Dropped != 3 {
		t.Errorf("Dropped = %d, want 3", snap.Dropped)
	}
	if snap.DroppedByReason[DropStale] != 2 {
		t.Errorf("DroppedByReason[stale] = %d, want 2", snap.DroppedByReason[DropStale])
	}
	if snap.ProcessingEfficiency != 0.7 {
		t.Errorf("ProcessingEfficiency = %v, want 0.7", snap.ProcessingEfficiency)
	}
	if snap.LatencyMs <= 0 {
		t.Errorf("LatencyMs = %v, want > 0", snap.LatencyMs)
	}
}

func TestMonitor_NilSafe(t *testing.T) {
	var m *Monitor

	// Must not panic: components are wired without a monitor in tests.
	m.FrameReceived()
	m.FrameProcessed(time.Millisecond)
	m.FrameDropped(DropOverflow)
	m.SetBufferSource(func() (int, int) { return 0, 0 })
}

func TestMonitor_PeaksAreMonotonic(t *testing.T) {
	m := New(time.Second, nil)

	// Burst, then idle: peak must hold after the rate falls.
	for i := 0; i < 100; i++ {
		m.FrameReceived()
	}
	time.Sleep(150 * time.Millisecond)
	first := m.Sample()
	if first.PeakReceiveRate <= 0 {
		t.Fatalf("PeakReceiveRate = %v, want > 0", first.PeakReceiveRate)
	}

	time.Sleep(150 * time.Millisecond)
	second := m.Sample()
	if second.ReceiveRate >= first.ReceiveRate {
		t.Errorf("ReceiveRate should fall when idle: %v -> %v", first.ReceiveRate, second.ReceiveRate)
	}
	if second.PeakReceiveRate != first.PeakReceiveRate {
		t.Errorf("PeakReceiveRate moved: %v -> %v", first.PeakReceiveRate, second.PeakReceiveRate)
	}
}

func TestMonitor_Reset(t *testing.T) {
	m := New(time.Second, nil)

	m.FrameReceived()
	m.FrameProcessed(time.Millisecond)
	m.FrameDropped(DropUnknown)
	time.Sleep(150 * time.Millisecond)
	m.Sample()

	m.Reset()
	snap := m.Sample()

	if snap.Received != 0 || snap.Processed != 0 || snap.Dropped != 0 {
		t.Errorf("counters not cleared: %+v", snap)
	}
	if snap.PeakReceiveRate != 0 || snap.PeakProcessRate != 0 {
		t.Errorf("peaks not cleared: %+v", snap)
	}
	if snap.LatencyMs != 0 {
		t.Errorf("latency not cleared: %v", snap.LatencyMs)
	}
}

func TestMonitor_BufferUtilization(t *testing.T) {
	m := New(time.Second, nil)
	m.SetBufferSource(func() (int, int) { return 25, 100 })

	snap := m.Sample()
	if snap.BufferUtilization != 0.25 {
		t.Errorf("BufferUtilization = %v, want 0.25", snap.BufferUtilization)
	}
}

func TestMonitor_RegisterPrometheus(t *testing.T) {
	m := New(time.Second, nil)
	reg := prometheus.NewRegistry()

	if err := m.Register(reg); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// Double registration must fail, not silently duplicate.
	if err := m.Register(reg); err == nil {
		t.Error("expected error on duplicate registration")
	}
}
