// Package connection owns the logical connection to the diagnostic
// stream: dialing, the client heartbeat, and reconnection after
// unsolicited closes.
//
// The Manager drives a small state machine
// (disconnected → connecting → connected → {disconnecting → disconnected |
// reconnecting → connecting}); error is reached on a failed deliberate
// connect and exits only through Disconnect then Connect. A generation
// counter invalidates callbacks from superseded sockets so a late close
// from an old connection cannot disturb its replacement.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/motordiag/faultstream/internal/telemetry"
	"github.com/motordiag/faultstream/internal/wire"
)

// activeConn pairs a client with its teardown signal. The done channel
// stops the pumps of a superseded connection even before its socket
// reads fail.
type activeConn struct {
	client *Client
	done   chan struct{}
}

// Manager owns one logical stream connection.
type Manager struct {
	cfg     ManagerConfig
	logger  *slog.Logger
	sink    FrameSink
	monitor *telemetry.Monitor

	events chan LifecycleEvent

	mu             sync.Mutex
	state          State
	health         Health
	attempts       int
	connectedSince time.Time
	lastAck        time.Time
	sessionID      uuid.UUID
	gen            int64
	active         *activeConn
	reconnectTimer *time.Timer
	runCtx         context.Context
	runCancel      context.CancelFunc

	wg sync.WaitGroup
}

// NewManager creates a Manager delivering decoded events to sink.
func NewManager(cfg ManagerConfig, sink FrameSink, monitor *telemetry.Monitor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultManagerConfig()
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.HeartbeatTimeout == 0 {
		cfg.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.EventBufferSize == 0 {
		cfg.EventBufferSize = def.EventBufferSize
	}
	if cfg.Backoff == nil {
		cfg.Backoff = def.Backoff
	}

	return &Manager{
		cfg:     cfg,
		logger:  logger,
		sink:    sink,
		monitor: monitor,
		events:  make(chan LifecycleEvent, cfg.EventBufferSize),
		state:   StateDisconnected,
		health:  HealthGood,
	}
}

// Connect establishes the stream connection. It returns once the
// socket is open or the dial failed; a malformed URL or failed dial
// leaves the manager in the error state.
func (m *Manager) Connect(ctx context.Context) error {
	if err := validateStreamURL(m.cfg.URL); err != nil {
		return err
	}

	m.mu.Lock()
	switch m.state {
	case StateDisconnected, StateError:
	default:
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	m.state = StateConnecting
	m.runCtx, m.runCancel = context.WithCancel(context.Background())
	runCtx := m.runCtx
	m.mu.Unlock()

	if err := m.dial(ctx, runCtx); err != nil {
		m.mu.Lock()
		if m.state == StateConnecting {
			m.state = StateError
		}
		m.mu.Unlock()
		m.emit(LifecycleEvent{Kind: EventError, Err: err, At: time.Now()})
		return err
	}
	return nil
}

// Disconnect tears the connection down deliberately: reconnect and
// heartbeat timers are cancelled atomically with the state transition
// so no retry can race the shutdown.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state == StateDisconnected || m.state == StateDisconnecting {
		m.mu.Unlock()
		return
	}
	m.state = StateDisconnecting
	m.gen++ // invalidate callbacks from the outgoing connection
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	if m.runCancel != nil {
		m.runCancel()
	}
	active := m.active
	m.active = nil
	m.mu.Unlock()

	if active != nil {
		close(active.done)
		active.client.Close()
	}
	m.wg.Wait()

	m.mu.Lock()
	m.state = StateDisconnected
	m.health = HealthGood
	m.connectedSince = time.Time{}
	m.attempts = 0
	m.mu.Unlock()

	m.emit(LifecycleEvent{Kind: EventClose, At: time.Now()})
	m.logger.Info("disconnected from stream")
}

// Events returns the lifecycle event channel. Events are dropped, not
// blocked on, when the consumer falls behind.
func (m *Manager) Events() <-chan LifecycleEvent {
	return m.events
}

// Snapshot returns a read-only view of the connection state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:            m.state,
		Health:           m.health,
		Attempts:         m.attempts,
		ConnectedSince:   m.connectedSince,
		LastHeartbeatAck: m.lastAck,
		SessionID:        m.sessionID,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ConnectionDuration reports how long the current session has been
// connected, zero when it is not.
func (m *Manager) ConnectionDuration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected || m.connectedSince.IsZero() {
		return 0
	}
	return time.Since(m.connectedSince)
}

// dial opens a socket and promotes it to the active connection. The
// promotion is skipped if the manager left the connecting state while
// the dial was in flight (a Disconnect racing a reconnect).
func (m *Manager) dial(ctx context.Context, runCtx context.Context) error {
	client := NewClient(ClientConfig{
		URL:          m.cfg.URL,
		WriteTimeout: m.cfg.WriteTimeout,
		BufferSize:   m.cfg.BufferSize,
	}, m.logger)

	if err := client.Connect(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	if m.state != StateConnecting {
		m.mu.Unlock()
		client.Close()
		return fmt.Errorf("connect superseded in state %s", m.state)
	}
	if m.active != nil {
		close(m.active.done)
		m.active.client.Close()
	}
	m.gen++
	gen := m.gen
	done := make(chan struct{})
	m.active = &activeConn{client: client, done: done}
	m.state = StateConnected
	m.health = HealthGood
	m.attempts = 0
	m.connectedSince = time.Now()
	m.lastAck = time.Now()
	m.sessionID = uuid.New()
	m.mu.Unlock()

	m.wg.Add(2)
	go m.readPump(runCtx, client, done, gen)
	go m.heartbeatLoop(runCtx, client, done, gen)

	m.emit(LifecycleEvent{Kind: EventOpen, At: time.Now()})
	m.logger.Info("stream connected", "url", m.cfg.URL)
	return nil
}

// readPump decodes inbound frames and routes them until the connection
// fails or is superseded.
func (m *Manager) readPump(ctx context.Context, client *Client, done chan struct{}, gen int64) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case err := <-client.Errors():
			m.handleSocketError(gen, err)
			return
		case msg, ok := <-client.Messages():
			if !ok {
				return
			}
			m.handleFrame(msg)
		}
	}
}

// handleFrame decodes one frame. Heartbeat acks are swallowed here and
// never reach subscribers; malformed frames are counted and dropped.
func (m *Manager) handleFrame(msg TimestampedMessage) {
	m.monitor.FrameReceived()

	frame, err := wire.Decode(msg.Data, msg.ReceivedAt)
	if err != nil {
		switch {
		case errors.Is(err, wire.ErrUnknownFrame),
			errors.Is(err, wire.ErrMissingEntity),
			errors.Is(err, wire.ErrMissingTimestamp):
			m.monitor.FrameDropped(telemetry.DropUnknown)
		default:
			m.monitor.FrameDropped(telemetry.DropParse)
		}
		return
	}

	switch f := frame.(type) {
	case *wire.HeartbeatAck:
		m.noteAck()
	case *wire.DiagnosticEvent:
		if m.sink != nil && !m.sink.Enqueue(f) {
			m.monitor.FrameDropped(telemetry.DropOverflow)
		}
	}
}

// noteAck refreshes heartbeat health. Any ack restores a poor
// connection to good.
func (m *Manager) noteAck() {
	m.mu.Lock()
	m.lastAck = time.Now()
	if m.health == HealthPoor {
		m.health = HealthGood
		m.logger.Info("heartbeat ack resumed, connection healthy")
	}
	m.mu.Unlock()
}

// heartbeatLoop sends the client heartbeat frame on a fixed cadence
// and marks the connection poor when acks stop. A poor connection is
// not force-closed; the read pump decides when the socket is dead.
func (m *Manager) heartbeatLoop(ctx context.Context, client *Client, done chan struct{}, gen int64) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if err := client.Send(wire.EncodeHeartbeat(time.Now())); err != nil {
				m.logger.Debug("heartbeat send failed", "error", err)
			}

			m.mu.Lock()
			stale := time.Since(m.lastAck) > m.cfg.HeartbeatTimeout
			mark := stale && m.gen == gen && m.state == StateConnected && m.health != HealthPoor
			if mark {
				m.health = HealthPoor
			}
			m.mu.Unlock()

			if mark {
				m.logger.Warn("no heartbeat ack, marking connection poor",
					"timeout", m.cfg.HeartbeatTimeout,
				)
			}
		}
	}
}

// handleSocketError reacts to an unsolicited socket failure: transition
// to reconnecting and schedule a retry. Stale callbacks from superseded
// connections and deliberate shutdowns are ignored.
func (m *Manager) handleSocketError(gen int64, err error) {
	m.mu.Lock()
	if gen != m.gen || m.state == StateDisconnecting || m.state == StateDisconnected {
		m.mu.Unlock()
		return
	}

	m.state = StateReconnecting
	m.connectedSince = time.Time{}
	m.attempts++
	attempt := m.attempts
	delay := m.cfg.Backoff.Delay(attempt)
	m.reconnectTimer = time.AfterFunc(delay, m.attemptReconnect)
	m.mu.Unlock()

	m.logger.Warn("stream connection lost, reconnecting",
		"error", err,
		"attempt", attempt,
		"delay", delay,
	)
	m.emit(LifecycleEvent{Kind: EventClose, Err: err, At: time.Now()})
	m.emit(LifecycleEvent{Kind: EventReconnect, Attempt: attempt, At: time.Now()})
}

// attemptReconnect runs when the reconnect timer fires.
func (m *Manager) attemptReconnect() {
	m.mu.Lock()
	if m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.state = StateConnecting
	runCtx := m.runCtx
	m.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(runCtx, 15*time.Second)
	err := m.dial(dialCtx, runCtx)
	cancel()
	if err == nil {
		return
	}

	m.mu.Lock()
	if m.state != StateConnecting {
		// Disconnected while the dial was in flight.
		m.mu.Unlock()
		return
	}
	m.state = StateReconnecting
	m.attempts++
	attempt := m.attempts
	delay := m.cfg.Backoff.Delay(attempt)
	m.reconnectTimer = time.AfterFunc(delay, m.attemptReconnect)
	m.mu.Unlock()

	m.logger.Warn("reconnect attempt failed",
		"error", err,
		"attempt", attempt,
		"next_delay", delay,
	)
	m.emit(LifecycleEvent{Kind: EventError, Err: err, Attempt: attempt, At: time.Now()})
}

// emit delivers a lifecycle event without blocking.
func (m *Manager) emit(ev LifecycleEvent) {
	select {
	case m.events <- ev:
	default:
		m.logger.Debug("lifecycle event dropped, consumer behind", "kind", ev.Kind)
	}
}

// validateStreamURL rejects URLs the dialer could never use.
func validateStreamURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return ErrInvalidURL
	}
	return nil
}
