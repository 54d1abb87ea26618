// Package store is the keyed cache of per-entity diagnostic state. It
// is the single shared mutable resource of the ingestion core: it
// exclusively owns every record, and views only ever receive copies.
//
// Two distinct eviction policies apply. Within one entity the history
// is FIFO: arrival order defines relevance, so the oldest sample goes
// first. Across entities eviction is true LRU on last update time, so
// a vehicle that went silent is reclaimed before one still reporting.
package store

import (
	"container/list"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/motordiag/faultstream/internal/wire"
)

// ErrStaleEvent is returned for an event older than the entity's
// current latest. Out-of-order frames are dropped, never inserted.
var ErrStaleEvent = errors.New("event older than latest for entity")

// Config holds entity store bounds.
type Config struct {
	HistoryCapacity int           // Per-entity history cap
	MaxEntities     int           // Entity count cap enforced by the sweeper
	MaxEntityAge    time.Duration // Entities silent longer than this are reclaimed
	SweepInterval   time.Duration // Cadence of the background sweep
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HistoryCapacity: 20,
		MaxEntities:     50,
		MaxEntityAge:    10 * time.Minute,
		SweepInterval:   10 * time.Second,
	}
}

// Record is the per-entity state handed to views. Returned records are
// copies; events themselves are immutable after decode and safe to
// share.
type Record struct {
	EntityID     string
	Latest       *wire.DiagnosticEvent
	History      []*wire.DiagnosticEvent // Oldest first, len ≤ HistoryCapacity
	FirstSeen    time.Time
	LastUpdate   time.Time
	MessageCount int64
}

type entry struct {
	rec  Record
	elem *list.Element // Position in the recency list; Value is the entity id
}

// Stats are store counters.
type Stats struct {
	Entities   int
	Upserts    int64
	StaleDrops int64
	Evictions  int64
}

// Store is the bounded entity cache.
type Store struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
	recency *list.List // Front = most recently updated

	upserts    int64
	staleDrops int64
	evictions  int64
}

// New creates a Store.
func New(cfg Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = def.HistoryCapacity
	}
	if cfg.MaxEntities <= 0 {
		cfg.MaxEntities = def.MaxEntities
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}

	return &Store{
		cfg:     cfg,
		logger:  logger,
		entries: make(map[string]*entry),
		recency: list.New(),
	}
}

// Upsert applies one event to its entity record. Events with a
// timestamp before the entity's latest are rejected with ErrStaleEvent;
// equal timestamps are accepted (non-decreasing order).
func (s *Store) Upsert(ev *wire.DiagnosticEvent) error {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[ev.EntityID]
	if !ok {
		e = &entry{
			rec: Record{
				EntityID:  ev.EntityID,
				FirstSeen: now,
				History:   make([]*wire.DiagnosticEvent, 0, s.cfg.HistoryCapacity),
			},
		}
		e.elem = s.recency.PushFront(ev.EntityID)
		s.entries[ev.EntityID] = e
	} else if ev.Timestamp < e.rec.Latest.Timestamp {
		s.staleDrops++
		return ErrStaleEvent
	}

	e.rec.Latest = ev
	e.rec.History = append(e.rec.History, ev)
	if len(e.rec.History) > s.cfg.HistoryCapacity {
		// FIFO: shift in place so the backing array stays at capacity.
		n := copy(e.rec.History, e.rec.History[1:])
		e.rec.History = e.rec.History[:n]
	}
	e.rec.LastUpdate = now
	e.rec.MessageCount++
	s.recency.MoveToFront(e.elem)
	s.upserts++

	return nil
}

// Get returns a copy of one entity's record.
func (s *Store) Get(entityID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[entityID]
	if !ok {
		return Record{}, false
	}
	return copyRecord(&e.rec), true
}

// All returns copies of every record, keyed by entity id.
func (s *Store) All() map[string]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Record, len(s.entries))
	for id, e := range s.entries {
		out[id] = copyRecord(&e.rec)
	}
	return out
}

// Len returns the number of tracked entities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// LimitSize evicts least-recently-updated entities until at most max
// remain. Returns the number evicted.
func (s *Store) LimitSize(max int) int {
	if max < 0 {
		max = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for len(s.entries) > max {
		back := s.recency.Back()
		if back == nil {
			break
		}
		s.removeLocked(back.Value.(string))
		evicted++
	}
	return evicted
}

// EvictOlderThan removes entities whose last update predates the
// cutoff, reclaiming memory from vehicles that silently disappeared.
func (s *Store) EvictOlderThan(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	// The recency list is ordered by last update, so scanning from the
	// back stops at the first entity still fresh.
	for {
		back := s.recency.Back()
		if back == nil {
			break
		}
		id := back.Value.(string)
		if !s.entries[id].rec.LastUpdate.Before(cutoff) {
			break
		}
		s.removeLocked(id)
		evicted++
	}
	return evicted
}

// Remove drops one entity outright.
func (s *Store) Remove(entityID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[entityID]; !ok {
		return false
	}
	s.removeLocked(entityID)
	return true
}

// Stats returns store counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Entities:   len(s.entries),
		Upserts:    s.upserts,
		StaleDrops: s.staleDrops,
		Evictions:  s.evictions,
	}
}

// RunSweeper enforces the entity cap and age cutoff on a fixed cadence
// until ctx is cancelled.
func (s *Store) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			capped := s.LimitSize(s.cfg.MaxEntities)
			var aged int
			if s.cfg.MaxEntityAge > 0 {
				aged = s.EvictOlderThan(s.cfg.MaxEntityAge)
			}
			if capped > 0 || aged > 0 {
				s.logger.Debug("store sweep",
					"capped", capped,
					"aged_out", aged,
					"entities", s.Len(),
				)
			}
		}
	}
}

// removeLocked deletes an entry. Caller must hold the write lock.
func (s *Store) removeLocked(entityID string) {
	e := s.entries[entityID]
	s.recency.Remove(e.elem)
	delete(s.entries, entityID)
	s.evictions++
}

// copyRecord returns a view-safe copy: the history slice is fresh, the
// events it points at are immutable.
func copyRecord(rec *Record) Record {
	out := *rec
	out.History = make([]*wire.DiagnosticEvent, len(rec.History))
	copy(out.History, rec.History)
	return out
}
