package wire

import (
	"errors"
	"time"
)

// Errors
var (
	ErrUnknownFrame     = errors.New("unknown or missing frame discriminator")
	ErrMissingEntity    = errors.New("diagnostic frame missing vehicle_id")
	ErrMissingTimestamp = errors.New("diagnostic frame missing timestamp")
)

// FaultKind discriminates the category of diagnostic signal.
type FaultKind string

const (
	FaultBearing         FaultKind = "bearing"
	FaultInsulation      FaultKind = "insulation"
	FaultRotorBar        FaultKind = "rotor_bar"
	FaultEccentricity    FaultKind = "eccentricity"
	FaultDemagnetization FaultKind = "demagnetization"
	FaultUnbalance       FaultKind = "unbalance"
)

// knownFaults is the closed set of fault kinds resolved at decode time.
var knownFaults = map[FaultKind]struct{}{
	FaultBearing:         {},
	FaultInsulation:      {},
	FaultRotorBar:        {},
	FaultEccentricity:    {},
	FaultDemagnetization: {},
	FaultUnbalance:       {},
}

// Valid reports whether k names a known fault kind.
func (k FaultKind) Valid() bool {
	_, ok := knownFaults[k]
	return ok
}

// Frame is a decoded inbound frame: either a DiagnosticEvent or a
// control frame such as HeartbeatAck.
type Frame interface {
	frame()
}

// DiagnosticEvent is one per-vehicle, per-fault-kind diagnostic sample.
// Events are immutable once decoded; ownership moves from the codec
// through the dispatcher into the entity store.
type DiagnosticEvent struct {
	EntityID   string             // Reporting vehicle id
	Fault      FaultKind          // Resolved fault discriminator
	Timestamp  int64              // Producer timestamp (ms since epoch)
	Score      float64            // Fault confidence score
	Features   map[string]float64 // Named numeric features, raw wire values
	TimeSeries []float64          // Optional raw signal window
	Spectrum   []float64          // Optional frequency spectrum amplitudes
	ReceivedAt time.Time          // Local timestamp when the frame was read
}

func (*DiagnosticEvent) frame() {}

// HeartbeatAck is the server's answer to a client heartbeat. Swallowed
// by the connection manager; never forwarded to subscribers.
type HeartbeatAck struct {
	Timestamp int64 // Echoed client timestamp (ms), 0 if absent
}

func (*HeartbeatAck) frame() {}
