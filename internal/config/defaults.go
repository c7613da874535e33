package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultBaseURL            = "https://api.foodsquare.app"
	DefaultSocketURL          = "wss://api.foodsquare.app/live"
	DefaultNamespace          = "customer"
	DefaultAPITimeout         = 30 * time.Second
	DefaultMaxRetries         = 3
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultHeartbeatInterval  = 30 * time.Second
	DefaultHeartbeatTimeout   = 5 * time.Second
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 30 * time.Second
	DefaultMaxAttempts        = 10
	DefaultBufferSize         = 256
	DefaultJoinTimeout        = 10 * time.Second
	DefaultConnectDelay       = 1500 * time.Millisecond
	DefaultDisconnectDelay    = 3 * time.Second
	DefaultPollerInterval     = 30 * time.Second
	DefaultPollerConcurrency  = 4
	DefaultPollerTimeout      = 10 * time.Second
	DefaultPollInterval       = 1 * time.Second
	DefaultFailThreshold      = 5
	DefaultMetricsPort        = 9090
	DefaultMetricsPath        = "/metrics"
)

func (c *WatcherConfig) applyDefaults() {
	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	// Socket defaults
	if c.Socket.URL == "" {
		c.Socket.URL = DefaultSocketURL
	}
	if c.Socket.Namespace == "" {
		c.Socket.Namespace = DefaultNamespace
	}
	if c.Socket.HandshakeTimeout == 0 {
		c.Socket.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Socket.WriteTimeout == 0 {
		c.Socket.WriteTimeout = DefaultWriteTimeout
	}
	if c.Socket.HeartbeatInterval == 0 {
		c.Socket.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Socket.HeartbeatTimeout == 0 {
		c.Socket.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.Socket.ReconnectBaseDelay == 0 {
		c.Socket.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Socket.ReconnectMaxDelay == 0 {
		c.Socket.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Socket.MaxAttempts == 0 {
		c.Socket.MaxAttempts = DefaultMaxAttempts
	}
	if c.Socket.BufferSize == 0 {
		c.Socket.BufferSize = DefaultBufferSize
	}
	if c.Socket.JoinTimeout == 0 {
		c.Socket.JoinTimeout = DefaultJoinTimeout
	}

	// Demand defaults
	if c.Demand.ConnectDelay == 0 {
		c.Demand.ConnectDelay = DefaultConnectDelay
	}
	if c.Demand.DisconnectDelay == 0 {
		c.Demand.DisconnectDelay = DefaultDisconnectDelay
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollerInterval
	}
	if c.Poller.Concurrency == 0 {
		c.Poller.Concurrency = DefaultPollerConcurrency
	}
	if c.Poller.Timeout == 0 {
		c.Poller.Timeout = DefaultPollerTimeout
	}

	// Recovery defaults
	if c.Recovery.PollInterval == 0 {
		c.Recovery.PollInterval = DefaultPollInterval
	}
	if c.Recovery.FailThreshold == 0 {
		c.Recovery.FailThreshold = DefaultFailThreshold
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
