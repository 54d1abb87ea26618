package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *MonitorConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Stream.URL == "" {
		return errors.New("stream.url is required")
	}
	if !strings.HasPrefix(c.Stream.URL, "ws://") && !strings.HasPrefix(c.Stream.URL, "wss://") {
		return fmt.Errorf("stream.url must use ws:// or wss://, got %q", c.Stream.URL)
	}
	if c.Stream.HeartbeatTimeout <= c.Stream.HeartbeatInterval {
		return fmt.Errorf("stream.heartbeat_timeout (%v) must exceed heartbeat_interval (%v)",
			c.Stream.HeartbeatTimeout, c.Stream.HeartbeatInterval)
	}
	if c.Stream.BufferSize < 1 {
		return errors.New("stream.buffer_size must be >= 1")
	}
	if c.Stream.MaxBufferSize < c.Stream.BufferSize {
		return fmt.Errorf("stream.max_buffer_size (%d) cannot be below buffer_size (%d)",
			c.Stream.MaxBufferSize, c.Stream.BufferSize)
	}

	if c.Store.HistoryCapacity < 1 {
		return errors.New("store.history_capacity must be >= 1")
	}
	if c.Store.MaxEntities < 1 {
		return errors.New("store.max_entities must be >= 1")
	}

	if c.Scheduler.Interval <= 0 {
		return errors.New("scheduler.interval must be positive")
	}

	if c.Alerts.ScoreThreshold < 0 || c.Alerts.ScoreThreshold > 1 {
		return fmt.Errorf("alerts.score_threshold must be between 0 and 1, got %g", c.Alerts.ScoreThreshold)
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}
