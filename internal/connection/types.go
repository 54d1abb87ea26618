package connection

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/motordiag/faultstream/internal/wire"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyClosed    = errors.New("already closed")
	ErrAlreadyConnected = errors.New("connection already established or in progress")
	ErrInvalidURL       = errors.New("stream url must use ws or wss scheme")
)

// State is the connection lifecycle state. Mutated only by the Manager.
type State string

const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateDisconnecting State = "disconnecting"
	StateReconnecting  State = "reconnecting"
	StateError         State = "error"
)

// Health reflects heartbeat acknowledgement freshness. A poor
// connection stays open; the stream may still be delivering.
type Health string

const (
	HealthGood Health = "good"
	HealthPoor Health = "poor"
)

// EventKind labels lifecycle events emitted by the Manager.
type EventKind string

const (
	EventOpen      EventKind = "open"
	EventClose     EventKind = "close"
	EventError     EventKind = "error"
	EventReconnect EventKind = "reconnect"
)

// LifecycleEvent is a connection status change, consumed by status
// badges and the service's upstream plumbing.
type LifecycleEvent struct {
	Kind    EventKind
	Err     error // Set for error events
	Attempt int   // Reconnect attempt number, 0 otherwise
	At      time.Time
}

// TimestampedMessage wraps raw frame bytes with the receive timestamp.
type TimestampedMessage struct {
	Data       []byte
	ReceivedAt time.Time
}

// FrameSink receives decoded diagnostic events from the Manager.
// Enqueue returns false when the sink is full; the Manager counts that
// as an overflow drop.
type FrameSink interface {
	Enqueue(ev *wire.DiagnosticEvent) bool
}

// ClientConfig configures a single WebSocket connection.
type ClientConfig struct {
	URL              string
	HandshakeTimeout time.Duration // Dial deadline
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	URL               string
	HeartbeatInterval time.Duration // Client heartbeat frame cadence
	HeartbeatTimeout  time.Duration // No ack within this window marks health poor
	WriteTimeout      time.Duration
	BufferSize        int           // Per-connection message channel size
	EventBufferSize   int           // Lifecycle event channel size
	Backoff           BackoffPolicy // Reconnect delay policy
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		HeartbeatInterval: 5 * time.Second,
		HeartbeatTimeout:  10 * time.Second,
		WriteTimeout:      5 * time.Second,
		BufferSize:        1000,
		EventBufferSize:   32,
		Backoff:           FixedDelay{Wait: 2 * time.Second},
	}
}

// Snapshot is a read-only view of the connection state.
type Snapshot struct {
	State            State
	Health           Health
	Attempts         int       // Reconnect attempts since last successful open
	ConnectedSince   time.Time // Zero when not connected
	LastHeartbeatAck time.Time // Zero before the first ack
	SessionID        uuid.UUID // Rotates on every successful open
}
