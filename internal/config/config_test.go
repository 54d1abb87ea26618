package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-monitor
stream:
  url: wss://faults.example.com/stream
  heartbeat_interval: 3s
control:
  url: https://bridge.example.com
store:
  history_capacity: 10
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-monitor" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-monitor")
	}
	if cfg.Stream.URL != "wss://faults.example.com/stream" {
		t.Errorf("Stream.URL = %q, want %q", cfg.Stream.URL, "wss://faults.example.com/stream")
	}
	if cfg.Stream.HeartbeatInterval != 3*time.Second {
		t.Errorf("Stream.HeartbeatInterval = %v, want %v", cfg.Stream.HeartbeatInterval, 3*time.Second)
	}
	if cfg.Store.HistoryCapacity != 10 {
		t.Errorf("Store.HistoryCapacity = %d, want 10", cfg.Store.HistoryCapacity)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_STREAM_URL", "wss://faults.internal:8443/stream")

	yaml := `
instance:
  id: test-monitor
stream:
  url: ${TEST_STREAM_URL}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Stream.URL != "wss://faults.internal:8443/stream" {
		t.Errorf("Stream.URL = %q, want %q", cfg.Stream.URL, "wss://faults.internal:8443/stream")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-monitor
stream:
  url: wss://faults.example.com/stream
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Stream.HeartbeatInterval != DefaultHeartbeatInterval {
		t.Errorf("Stream.HeartbeatInterval = %v, want default %v", cfg.Stream.HeartbeatInterval, DefaultHeartbeatInterval)
	}
	if cfg.Stream.ReconnectDelay != DefaultReconnectDelay {
		t.Errorf("Stream.ReconnectDelay = %v, want default %v", cfg.Stream.ReconnectDelay, DefaultReconnectDelay)
	}
	if cfg.Store.HistoryCapacity != DefaultHistoryCapacity {
		t.Errorf("Store.HistoryCapacity = %d, want default %d", cfg.Store.HistoryCapacity, DefaultHistoryCapacity)
	}
	if cfg.Store.MaxEntities != DefaultMaxEntities {
		t.Errorf("Store.MaxEntities = %d, want default %d", cfg.Store.MaxEntities, DefaultMaxEntities)
	}
	if cfg.Scheduler.Interval != DefaultUpdateInterval {
		t.Errorf("Scheduler.Interval = %v, want default %v", cfg.Scheduler.Interval, DefaultUpdateInterval)
	}
	if cfg.Alerts.ScoreThreshold != DefaultScoreThreshold {
		t.Errorf("Alerts.ScoreThreshold = %g, want default %g", cfg.Alerts.ScoreThreshold, DefaultScoreThreshold)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
}

func TestValidate(t *testing.T) {
	valid := func() MonitorConfig {
		cfg := MonitorConfig{
			Instance: InstanceConfig{ID: "test"},
			Stream:   StreamConfig{URL: "wss://faults.example.com/stream"},
		}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*MonitorConfig)
		wantErr string
	}{
		{
			name:    "missing instance id",
			mutate:  func(c *MonitorConfig) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "missing stream url",
			mutate:  func(c *MonitorConfig) { c.Stream.URL = "" },
			wantErr: "stream.url is required",
		},
		{
			name:    "non-websocket stream url",
			mutate:  func(c *MonitorConfig) { c.Stream.URL = "https://faults.example.com" },
			wantErr: `stream.url must use ws:// or wss://, got "https://faults.example.com"`,
		},
		{
			name: "heartbeat timeout below interval",
			mutate: func(c *MonitorConfig) {
				c.Stream.HeartbeatInterval = 10 * time.Second
				c.Stream.HeartbeatTimeout = 5 * time.Second
			},
			wantErr: "stream.heartbeat_timeout (5s) must exceed heartbeat_interval (10s)",
		},
		{
			name: "max buffer below initial buffer",
			mutate: func(c *MonitorConfig) {
				c.Stream.BufferSize = 5000
				c.Stream.MaxBufferSize = 100
			},
			wantErr: "stream.max_buffer_size (100) cannot be below buffer_size (5000)",
		},
		{
			name:    "zero history capacity",
			mutate:  func(c *MonitorConfig) { c.Store.HistoryCapacity = -1 },
			wantErr: "store.history_capacity must be >= 1",
		},
		{
			name:    "score threshold out of range",
			mutate:  func(c *MonitorConfig) { c.Alerts.ScoreThreshold = 1.5 },
			wantErr: "alerts.score_threshold must be between 0 and 1, got 1.5",
		},
		{
			name:    "metrics port out of range",
			mutate:  func(c *MonitorConfig) { c.Metrics.Port = 70000 },
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "valid config",
			mutate:  func(c *MonitorConfig) {},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
