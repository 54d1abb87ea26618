package control

import "context"

// ClusterStatus describes the upstream processing cluster.
type ClusterStatus struct {
	State       string `json:"state"`
	NodeCount   int    `json:"node_count"`
	ActiveNodes int    `json:"active_nodes"`
	Uptime      int64  `json:"uptime_seconds"`
}

// ConsumerStatus describes the bridge's stream consumer.
type ConsumerStatus struct {
	Running        bool    `json:"running"`
	Topic          string  `json:"topic"`
	Lag            int64   `json:"lag"`
	MessagesPerSec float64 `json:"messages_per_sec"`
}

// StartBridge asks the upstream bridge to begin forwarding the fault
// stream. A failure here is an action failure for the caller; it does
// not affect an already-open stream.
func (c *Client) StartBridge(ctx context.Context) error {
	return c.post(ctx, "/bridge/start", nil)
}

// StopBridge asks the upstream bridge to stop forwarding.
func (c *Client) StopBridge(ctx context.Context) error {
	return c.post(ctx, "/bridge/stop", nil)
}

// SetCacheOptimization toggles the bridge's cache optimization mode.
func (c *Client) SetCacheOptimization(ctx context.Context, enabled bool) error {
	return c.post(ctx, "/cache/optimization", map[string]bool{"enabled": enabled})
}

// GetClusterStatus queries the processing cluster's health.
func (c *Client) GetClusterStatus(ctx context.Context) (*ClusterStatus, error) {
	var status ClusterStatus
	if err := c.get(ctx, "/cluster/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetConsumerStatus queries the stream consumer's state.
func (c *Client) GetConsumerStatus(ctx context.Context) (*ConsumerStatus, error) {
	var status ConsumerStatus
	if err := c.get(ctx, "/consumer/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}
