package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultHeartbeatTimeout  = 10 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultReconnectDelay    = 2 * time.Second
	DefaultBufferSize        = 1000
	DefaultMaxBufferSize     = 10000
	DefaultControlTimeout    = 30 * time.Second
	DefaultControlRetries    = 3
	DefaultHistoryCapacity   = 20
	DefaultMaxEntities       = 50
	DefaultMaxEntityAge      = 10 * time.Minute
	DefaultSweepInterval     = 10 * time.Second
	DefaultUpdateInterval    = 250 * time.Millisecond
	DefaultNoticeWindow      = 2 * time.Second
	DefaultAckWindow         = 500 * time.Millisecond
	DefaultScoreThreshold    = 0.8
	DefaultMetricsPort       = 9090
	DefaultMetricsPath       = "/metrics"
)

func (c *MonitorConfig) applyDefaults() {
	// Stream defaults
	if c.Stream.HeartbeatInterval == 0 {
		c.Stream.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Stream.HeartbeatTimeout == 0 {
		c.Stream.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.Stream.WriteTimeout == 0 {
		c.Stream.WriteTimeout = DefaultWriteTimeout
	}
	if c.Stream.ReconnectDelay == 0 {
		c.Stream.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultBufferSize
	}
	if c.Stream.MaxBufferSize == 0 {
		c.Stream.MaxBufferSize = DefaultMaxBufferSize
	}

	// Control defaults
	if c.Control.Timeout == 0 {
		c.Control.Timeout = DefaultControlTimeout
	}
	if c.Control.MaxRetries == 0 {
		c.Control.MaxRetries = DefaultControlRetries
	}

	// Store defaults
	if c.Store.HistoryCapacity == 0 {
		c.Store.HistoryCapacity = DefaultHistoryCapacity
	}
	if c.Store.MaxEntities == 0 {
		c.Store.MaxEntities = DefaultMaxEntities
	}
	if c.Store.MaxEntityAge == 0 {
		c.Store.MaxEntityAge = DefaultMaxEntityAge
	}
	if c.Store.SweepInterval == 0 {
		c.Store.SweepInterval = DefaultSweepInterval
	}

	// Scheduler defaults
	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = DefaultUpdateInterval
	}
	if c.Scheduler.NoticeWindow == 0 {
		c.Scheduler.NoticeWindow = DefaultNoticeWindow
	}
	if c.Scheduler.AckWindow == 0 {
		c.Scheduler.AckWindow = DefaultAckWindow
	}

	// Alerts defaults
	if c.Alerts.ScoreThreshold == 0 {
		c.Alerts.ScoreThreshold = DefaultScoreThreshold
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
