// Package telemetry observes the ingestion pipeline: arrival, apply and
// drop counters, throughput rates, buffer utilization and ingest latency.
//
// The monitor is strictly read-only with respect to control flow: every
// hook is a counter bump and nothing here can cause a frame to be
// dropped. All hook methods are nil-receiver safe so components can be
// wired without a monitor in tests.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DropReason classifies why a frame never reached the entity store.
type DropReason string

const (
	DropParse    DropReason = "parse"    // JSON parse failure
	DropUnknown  DropReason = "unknown"  // Missing/unrecognized discriminator
	DropStale    DropReason = "stale"    // Out-of-order timestamp
	DropOverflow DropReason = "overflow" // Ingress buffer full
)

// DropReasons lists every reason in a stable order.
var DropReasons = []DropReason{DropParse, DropUnknown, DropStale, DropOverflow}

// latencyAlpha is the EWMA smoothing factor for ingest latency.
const latencyAlpha = 0.2

// Snapshot is a point-in-time view of the pipeline counters.
type Snapshot struct {
	Received             int64
	Processed            int64
	Dropped              int64
	DroppedByReason      map[DropReason]int64
	ReceiveRate          float64 // frames/s over the last sampling interval
	ProcessRate          float64 // frames/s over the last sampling interval
	PeakReceiveRate      float64 // monotonic session maximum
	PeakProcessRate      float64 // monotonic session maximum
	ProcessingEfficiency float64 // processed / received, 0 when idle
	BufferUtilization    float64 // ingress buffer fill fraction, 0..1
	LatencyMs            float64 // EWMA receive→apply latency
	SampledAt            time.Time
}

// Monitor accumulates pipeline counters and samples them once per
// interval. It taps every stage without sitting on the critical path.
type Monitor struct {
	logger   *slog.Logger
	interval time.Duration

	received  atomic.Int64
	processed atomic.Int64
	dropped   map[DropReason]*atomic.Int64

	// Sampling state
	mu            sync.Mutex
	latencyMs     float64
	receiveRate   float64
	processRate   float64
	peakReceive   float64
	peakProcess   float64
	lastAt        time.Time
	lastReceived  int64
	lastProcessed int64

	bufferFn func() (length, capacity int)

	metrics *promMetrics
}

// New creates a Monitor sampling at the given interval (1s when zero).
func New(interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	dropped := make(map[DropReason]*atomic.Int64, len(DropReasons))
	for _, r := range DropReasons {
		dropped[r] = &atomic.Int64{}
	}

	return &Monitor{
		logger:   logger,
		interval: interval,
		dropped:  dropped,
		lastAt:   time.Now(),
		metrics:  newPromMetrics(),
	}
}

// SetBufferSource wires the ingress buffer whose utilization is sampled.
func (m *Monitor) SetBufferSource(fn func() (length, capacity int)) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.bufferFn = fn
	m.mu.Unlock()
}

// FrameReceived records one frame accepted off the wire.
func (m *Monitor) FrameReceived() {
	if m == nil {
		return
	}
	m.received.Add(1)
	m.metrics.framesReceived.Inc()
}

// FrameProcessed records one frame applied to the store, with the
// receive→apply latency.
func (m *Monitor) FrameProcessed(latency time.Duration) {
	if m == nil {
		return
	}
	m.processed.Add(1)
	m.metrics.framesProcessed.Inc()

	ms := float64(latency.Microseconds()) / 1000.0
	m.mu.Lock()
	if m.latencyMs == 0 {
		m.latencyMs = ms
	} else {
		m.latencyMs = latencyAlpha*ms + (1-latencyAlpha)*m.latencyMs
	}
	m.mu.Unlock()
}

// FrameDropped records one rejected frame.
func (m *Monitor) FrameDropped(reason DropReason) {
	if m == nil {
		return
	}
	if c, ok := m.dropped[reason]; ok {
		c.Add(1)
	}
	m.metrics.framesDropped.WithLabelValues(string(reason)).Inc()
}

// Run samples counters once per interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample(time.Now())
		}
	}
}

// Sample returns the current snapshot, recomputing rates if enough time
// has passed since the last sample.
func (m *Monitor) Sample() Snapshot {
	now := time.Now()
	m.sample(now)

	received := m.received.Load()
	processed := m.processed.Load()

	byReason := make(map[DropReason]int64, len(DropReasons))
	var droppedTotal int64
	for _, r := range DropReasons {
		n := m.dropped[r].Load()
		byReason[r] = n
		droppedTotal += n
	}

	var efficiency float64
	if received > 0 {
		efficiency = float64(processed) / float64(received)
	}

	m.mu.Lock()
	snap := Snapshot{
		Received:             received,
		Processed:            processed,
		Dropped:              droppedTotal,
		DroppedByReason:      byReason,
		ReceiveRate:          m.receiveRate,
		ProcessRate:          m.processRate,
		PeakReceiveRate:      m.peakReceive,
		PeakProcessRate:      m.peakProcess,
		ProcessingEfficiency: efficiency,
		LatencyMs:            m.latencyMs,
		SampledAt:            now,
	}
	fn := m.bufferFn
	m.mu.Unlock()

	if fn != nil {
		if length, capacity := fn(); capacity > 0 {
			snap.BufferUtilization = float64(length) / float64(capacity)
		}
	}

	return snap
}

// Reset clears all counters and peaks.
func (m *Monitor) Reset() {
	m.received.Store(0)
	m.processed.Store(0)
	for _, c := range m.dropped {
		c.Store(0)
	}

	m.mu.Lock()
	m.latencyMs = 0
	m.receiveRate = 0
	m.processRate = 0
	m.peakReceive = 0
	m.peakProcess = 0
	m.lastAt = time.Now()
	m.lastReceived = 0
	m.lastProcessed = 0
	m.mu.Unlock()
}

// sample recomputes rates and peaks. Intervals shorter than 100ms are
// skipped so back-to-back Sample calls do not produce noise.
func (m *Monitor) sample(now time.Time) {
	received := m.received.Load()
	processed := m.processed.Load()

	m.mu.Lock()
	elapsed := now.Sub(m.lastAt).Seconds()
	if elapsed < 0.1 {
		m.mu.Unlock()
		return
	}

	m.receiveRate = float64(received-m.lastReceived) / elapsed
	m.processRate = float64(processed-m.lastProcessed) / elapsed
	if m.receiveRate > m.peakReceive {
		m.peakReceive = m.receiveRate
	}
	if m.processRate > m.peakProcess {
		m.peakProcess = m.processRate
	}
	m.lastAt = now
	m.lastReceived = received
	m.lastProcessed = processed

	receiveRate, processRate, latency := m.receiveRate, m.processRate, m.latencyMs
	fn := m.bufferFn
	m.mu.Unlock()

	var utilization float64
	if fn != nil {
		if length, capacity := fn(); capacity > 0 {
			utilization = float64(length) / float64(capacity)
		}
	}

	m.metrics.receiveRate.Set(receiveRate)
	m.metrics.processRate.Set(processRate)
	m.metrics.latencyMs.Set(latency)
	m.metrics.bufferUtilization.Set(utilization)
}
