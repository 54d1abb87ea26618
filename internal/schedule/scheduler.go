// Package schedule decouples message arrival rate from render rate.
//
// The Scheduler coalesces bursts of store-update notifications into
// rate-limited batches: hundreds of events per second across many
// vehicles become at most one view refresh per interval. A separate
// NoticeThrottle bounds cross-cutting UI notices the same way.
package schedule

import (
	"log/slog"
	"sync"
	"time"
)

// Config holds scheduler settings.
type Config struct {
	Interval  time.Duration // Debounce window for update batches
	OutBuffer int           // Batch channel buffer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:  250 * time.Millisecond,
		OutBuffer: 16,
	}
}

// Stats are scheduler counters.
type Stats struct {
	Notifications  int64
	Flushes        int64
	DroppedBatches int64
}

// Scheduler batches entity-update notifications. Each Notify resets a
// single pending timer; when it fires, all entity ids accumulated since
// the last flush are delivered as one deduplicated batch.
type Scheduler struct {
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	stopped bool
	out     chan []string

	notifications  int64
	flushes        int64
	droppedBatches int64
}

// New creates a Scheduler.
func New(cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.OutBuffer <= 0 {
		cfg.OutBuffer = def.OutBuffer
	}

	return &Scheduler{
		interval: cfg.Interval,
		logger:   logger,
		pending:  make(map[string]struct{}),
		out:      make(chan []string, cfg.OutBuffer),
	}
}

// Updates returns the batch channel. Each batch holds the distinct
// entity ids updated since the previous flush, in no particular order.
func (s *Scheduler) Updates() <-chan []string {
	return s.out
}

// Notify records that an entity changed and (re)arms the flush timer.
func (s *Scheduler) Notify(entityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.pending[entityID] = struct{}{}
	s.notifications++

	if s.timer == nil {
		s.timer = time.AfterFunc(s.interval, s.timerFlush)
	} else {
		s.timer.Reset(s.interval)
	}
}

// Flush delivers the accumulated batch immediately.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
}

// Stop performs a final flush and closes the batch channel. Further
// Notify calls are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.flushLocked()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	close(s.out)
}

// Stats returns scheduler counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Notifications:  s.notifications,
		Flushes:        s.flushes,
		DroppedBatches: s.droppedBatches,
	}
}

func (s *Scheduler) timerFlush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timer = nil
	s.flushLocked()
}

// flushLocked drains the pending set into one batch. Caller must hold
// the lock; delivery is non-blocking so a stalled consumer loses the
// batch instead of stalling ingestion.
func (s *Scheduler) flushLocked() {
	if s.stopped || len(s.pending) == 0 {
		return
	}

	batch := make([]string, 0, len(s.pending))
	for id := range s.pending {
		batch = append(batch, id)
	}
	s.pending = make(map[string]struct{})

	select {
	case s.out <- batch:
		s.flushes++
	default:
		s.droppedBatches++
		s.logger.Warn("update batch dropped, consumer behind", "size", len(batch))
	}
}
