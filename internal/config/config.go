package config

import "time"

// WatcherConfig is the root configuration for a watcher instance.
type WatcherConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	API      APIConfig      `yaml:"api"`
	Socket   SocketConfig   `yaml:"socket"`
	Demand   DemandConfig   `yaml:"demand"`
	Poller   PollerConfig   `yaml:"poller"`
	Recovery RecoveryConfig `yaml:"recovery"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// InstanceConfig identifies who this watcher watches for. Exactly one of
// user_id and vendor_id is normally set.
type InstanceConfig struct {
	ID       string `yaml:"id"`
	UserID   string `yaml:"user_id"`
	VendorID string `yaml:"vendor_id"`
}

// APIConfig holds the REST snapshot API settings.
type APIConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Token      string        `yaml:"token"` // Bearer token, also used for the socket
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// SocketConfig holds transport connection settings.
type SocketConfig struct {
	URL                string        `yaml:"url"`
	Namespace          string        `yaml:"namespace"` // "customer" or "vendor"
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout   time.Duration `yaml:"heartbeat_timeout"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	MaxAttempts        int           `yaml:"max_attempts"`
	BufferSize         int           `yaml:"buffer_size"`
	JoinTimeout        time.Duration `yaml:"join_timeout"`
}

// DemandConfig holds the connect/disconnect debounce delays.
type DemandConfig struct {
	ConnectDelay    time.Duration `yaml:"connect_delay"`
	DisconnectDelay time.Duration `yaml:"disconnect_delay"`
}

// PollerConfig holds the degraded-mode REST poller settings.
type PollerConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RecoveryConfig holds recovery registry settings.
type RecoveryConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	FailThreshold int           `yaml:"fail_threshold"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
