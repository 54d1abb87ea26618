// Package wire decodes raw JSON frames from the diagnostic stream into
// the typed event union consumed by the rest of the ingestion core.
//
// Inbound frames carry one of two discriminators: control frames use
// "type" (heartbeat_response), diagnostic frames use "fault_type". A
// frame with neither, or with a fault type outside the known set, is
// rejected with ErrUnknownFrame and never reaches subscribers.
package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// frameEnvelope covers both discriminators so a frame is parsed once.
type frameEnvelope struct {
	Type       string             `json:"type"`
	VehicleID  string             `json:"vehicle_id"`
	FaultType  string             `json:"fault_type"`
	Timestamp  int64              `json:"timestamp"`
	Score      *float64           `json:"score"`
	FaultScore *float64           `json:"fault_score"`
	Features   map[string]float64 `json:"features"`
	TimeSeries []float64          `json:"time_series"`
	Spectrum   []float64          `json:"frequency_spectrum"`
}

// heartbeatFrame is the client→server heartbeat control frame.
type heartbeatFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// Decode parses a raw frame into the typed union. receivedAt is stamped
// onto diagnostic events so downstream stages can measure ingest latency.
func Decode(data []byte, receivedAt time.Time) (Frame, error) {
	var env frameEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}

	switch env.Type {
	case "heartbeat_response":
		return &HeartbeatAck{Timestamp: env.Timestamp}, nil
	case "":
		// Not a control frame; fall through to the fault discriminator.
	default:
		return nil, ErrUnknownFrame
	}

	kind := FaultKind(env.FaultType)
	if !kind.Valid() {
		return nil, ErrUnknownFrame
	}
	if env.VehicleID == "" {
		return nil, ErrMissingEntity
	}
	if env.Timestamp == 0 {
		return nil, ErrMissingTimestamp
	}

	// The stream is inconsistent about the score field name.
	var score float64
	switch {
	case env.Score != nil:
		score = *env.Score
	case env.FaultScore != nil:
		score = *env.FaultScore
	}

	return &DiagnosticEvent{
		EntityID:   env.VehicleID,
		Fault:      kind,
		Timestamp:  env.Timestamp,
		Score:      score,
		Features:   env.Features,
		TimeSeries: env.TimeSeries,
		Spectrum:   env.Spectrum,
		ReceivedAt: receivedAt,
	}, nil
}

// EncodeHeartbeat builds the client heartbeat frame for ts.
func EncodeHeartbeat(ts time.Time) []byte {
	data, _ := json.Marshal(heartbeatFrame{
		Type:      "heartbeat",
		Timestamp: ts.UnixMilli(),
	})
	return data
}
