package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *WatcherConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}
	if c.Instance.UserID == "" && c.Instance.VendorID == "" {
		return errors.New("one of instance.user_id or instance.vendor_id is required")
	}

	if c.Socket.Namespace != "customer" && c.Socket.Namespace != "vendor" {
		return fmt.Errorf("socket.namespace must be customer or vendor, got %q", c.Socket.Namespace)
	}
	if c.Socket.MaxAttempts < 1 {
		return errors.New("socket.max_attempts must be >= 1")
	}
	if c.Socket.ReconnectBaseDelay > c.Socket.ReconnectMaxDelay {
		return fmt.Errorf("socket.reconnect_base_delay (%s) cannot exceed reconnect_max_delay (%s)",
			c.Socket.ReconnectBaseDelay, c.Socket.ReconnectMaxDelay)
	}
	if c.Socket.HeartbeatTimeout >= c.Socket.HeartbeatInterval {
		return fmt.Errorf("socket.heartbeat_timeout (%s) must be below heartbeat_interval (%s)",
			c.Socket.HeartbeatTimeout, c.Socket.HeartbeatInterval)
	}
	if c.Socket.BufferSize < 1 {
		return errors.New("socket.buffer_size must be >= 1")
	}

	if c.Demand.ConnectDelay <= 0 {
		return errors.New("demand.connect_delay must be positive")
	}
	if c.Demand.DisconnectDelay < c.Demand.ConnectDelay {
		return fmt.Errorf("demand.disconnect_delay (%s) should not be below connect_delay (%s)",
			c.Demand.DisconnectDelay, c.Demand.ConnectDelay)
	}

	if c.Recovery.FailThreshold < 1 {
		return errors.New("recovery.fail_threshold must be >= 1")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}
