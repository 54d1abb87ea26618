// Package dispatch fans decoded diagnostic events out to view
// subscribers. A frame is decoded exactly once upstream; any number of
// subscribers observe the same event value through the typed bus.
//
// Subscriptions are explicit handles: On returns a Subscription whose
// Cancel removes exactly that registration, so handler lifetime is
// caller-controlled. There is no replay; a subscriber only observes
// events emitted after it registered.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/motordiag/faultstream/internal/wire"
)

// Kind selects which events a subscription observes: a specific fault
// kind, or KindAny for every diagnostic event.
type Kind string

// KindAny subscribes to all fault kinds.
const KindAny Kind = "*"

// KindOf maps a wire fault kind to its dispatch kind.
func KindOf(f wire.FaultKind) Kind {
	return Kind(f)
}

// Handler consumes one diagnostic event. Handlers run synchronously on
// the dispatch goroutine in registration order.
type Handler func(*wire.DiagnosticEvent)

// Subscription is the handle returned from On.
type Subscription struct {
	ID   uuid.UUID
	Kind Kind

	d *Dispatcher
}

// Cancel removes this registration. Safe to call more than once.
func (s Subscription) Cancel() {
	if s.d != nil {
		s.d.Off(s)
	}
}

type registration struct {
	id uuid.UUID
	fn Handler
}

// Stats are dispatcher counters.
type Stats struct {
	Emitted       int64
	Delivered     int64
	HandlerPanics int64
	Queue         QueueStats
}

// Dispatcher is the typed event bus between the connection manager and
// view subscribers.
type Dispatcher struct {
	logger *slog.Logger
	queue  *Queue[*wire.DiagnosticEvent]

	mu       sync.RWMutex
	handlers map[Kind][]registration

	statsMu       sync.Mutex
	emitted       int64
	delivered     int64
	handlerPanics int64
}

// New creates a Dispatcher with the given ingress queue bounds.
func New(queueInitial, queueMax int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:   logger,
		queue:    NewQueue[*wire.DiagnosticEvent](queueInitial, queueMax),
		handlers: make(map[Kind][]registration),
	}
}

// Enqueue buffers a decoded event for fan-out. Returns false when the
// ingress queue is full at maximum capacity or closed; the caller
// counts that as an overflow drop.
func (d *Dispatcher) Enqueue(ev *wire.DiagnosticEvent) bool {
	return d.queue.Enqueue(ev)
}

// QueueDepth reports the ingress queue fill, for buffer utilization.
func (d *Dispatcher) QueueDepth() (length, capacity int) {
	return d.queue.Len(), d.queue.Cap()
}

// On registers fn for events of the given kind. The same function may
// be registered multiple times and will be invoked once per
// registration.
func (d *Dispatcher) On(kind Kind, fn Handler) Subscription {
	sub := Subscription{ID: uuid.New(), Kind: kind, d: d}

	d.mu.Lock()
	d.handlers[kind] = append(d.handlers[kind], registration{id: sub.ID, fn: fn})
	d.mu.Unlock()

	return sub
}

// Off removes exactly one registration. Returns false when the
// subscription was already removed.
func (d *Dispatcher) Off(sub Subscription) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	regs := d.handlers[sub.Kind]
	for i, reg := range regs {
		if reg.id == sub.ID {
			d.handlers[sub.Kind] = append(regs[:i:i], regs[i+1:]...)
			return true
		}
	}
	return false
}

// Emit invokes all handlers registered for the event's kind, then all
// wildcard handlers, in registration order. A panicking handler is
// logged and does not prevent the remaining handlers from running.
func (d *Dispatcher) Emit(ev *wire.DiagnosticEvent) {
	d.mu.RLock()
	kind := KindOf(ev.Fault)
	regs := make([]registration, 0, len(d.handlers[kind])+len(d.handlers[KindAny]))
	regs = append(regs, d.handlers[kind]...)
	if kind != KindAny {
		regs = append(regs, d.handlers[KindAny]...)
	}
	d.mu.RUnlock()

	d.statsMu.Lock()
	d.emitted++
	d.statsMu.Unlock()

	for _, reg := range regs {
		d.invoke(reg, ev)
	}
}

// invoke runs one handler with panic isolation.
func (d *Dispatcher) invoke(reg registration, ev *wire.DiagnosticEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.statsMu.Lock()
			d.handlerPanics++
			d.statsMu.Unlock()
			d.logger.Error("subscriber handler panicked",
				"kind", ev.Fault,
				"entity", ev.EntityID,
				"panic", r,
			)
		}
	}()

	reg.fn(ev)

	d.statsMu.Lock()
	d.delivered++
	d.statsMu.Unlock()
}

// Run drains the ingress queue and emits until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			ev, ok := d.queue.TryDequeue()
			if !ok {
				select {
				case <-ctx.Done():
					return
				case <-time.After(5 * time.Millisecond):
					continue
				}
			}
			d.Emit(ev)
		}
	}
}

// Close closes the ingress queue. Subsequent Enqueue calls fail.
func (d *Dispatcher) Close() {
	d.queue.Close()
}

// Stats returns dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return Stats{
		Emitted:       d.emitted,
		Delivered:     d.delivered,
		HandlerPanics: d.handlerPanics,
		Queue:         d.queue.Stats(),
	}
}
