// Package config loads and validates the monitor daemon configuration.
package config

import "time"

// MonitorConfig is the root configuration for a monitor instance.
type MonitorConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Stream    StreamConfig    `yaml:"stream"`
	Control   ControlConfig   `yaml:"control"`
	Store     StoreConfig     `yaml:"store"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// InstanceConfig identifies this monitor.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// StreamConfig holds the fault-stream WebSocket settings.
type StreamConfig struct {
	URL               string        `yaml:"url"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	BufferSize        int           `yaml:"buffer_size"`
	MaxBufferSize     int           `yaml:"max_buffer_size"`
}

// ControlConfig holds the bridge REST control surface settings.
type ControlConfig struct {
	URL        string        `yaml:"url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	AutoStart  bool          `yaml:"auto_start"`
}

// StoreConfig holds entity cache bounds.
type StoreConfig struct {
	HistoryCapacity int           `yaml:"history_capacity"`
	MaxEntities     int           `yaml:"max_entities"`
	MaxEntityAge    time.Duration `yaml:"max_entity_age"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
}

// SchedulerConfig holds update-batching settings.
type SchedulerConfig struct {
	Interval     time.Duration `yaml:"interval"`
	NoticeWindow time.Duration `yaml:"notice_window"`
	AckWindow    time.Duration `yaml:"ack_window"`
}

// AlertsConfig holds alert generation settings.
type AlertsConfig struct {
	ScoreThreshold float64 `yaml:"score_threshold"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
