package config

import "time"

// Config represents the configuration for the realtime dashboard layer
type Config struct {
	Realtime RealtimeConfig `yaml:"realtime"`
	Cache    CacheConfig    `yaml:"cache"`
	Logging  LoggingConfig  `yaml:"logging"`
	Gateway  GatewayConfig  `yaml:"gateway"`
}

// RealtimeConfig contains change-feed connection configuration
type RealtimeConfig struct {
	URL               string        `yaml:"url"`                // Backend realtime websocket endpoint
	APIKey            string        `yaml:"api_key"`            // API key sent on connect
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"` // Interval between heartbeat frames
	WriteTimeout      time.Duration `yaml:"write_timeout"`      // Deadline for websocket writes

	// Reconnect policy for channels whose connection drops unexpectedly.
	// Attempts are spaced by exponential backoff between the initial and
	// max intervals; the budget bounds the total time spent retrying
	// before consumers see a terminal failure.
	ReconnectInitialInterval time.Duration `yaml:"reconnect_initial_interval"`
	ReconnectMaxInterval     time.Duration `yaml:"reconnect_max_interval"`
	ReconnectBudget          time.Duration `yaml:"reconnect_budget"`
}

// CacheConfig contains keyed query-cache configuration
type CacheConfig struct {
	OlricServers []string      `yaml:"olric_servers"` // Olric server addresses (e.g., ["localhost:3320"])
	DMap         string        `yaml:"dmap"`          // DMap holding cached query results
	Timeout      time.Duration `yaml:"timeout"`       // Timeout for cache operations
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`       // debug, info, warn, error
	Colors     bool   `yaml:"colors"`      // Colorize console output
	OutputFile string `yaml:"output_file"` // Empty for stdout
}

// GatewayConfig contains the diagnostic HTTP surface configuration
type GatewayConfig struct {
	Enabled    bool          `yaml:"enabled"`     // Enable the diagnostic endpoints
	ListenAddr string        `yaml:"listen_addr"` // Address to listen on (e.g., ":8090")
	Timeout    time.Duration `yaml:"timeout"`     // Per-request timeout
}

// DefaultConfig returns a configuration with sane defaults
func DefaultConfig() *Config {
	return &Config{
		Realtime: RealtimeConfig{
			URL:                      "ws://localhost:4000/realtime/v1/websocket",
			HeartbeatInterval:        30 * time.Second,
			WriteTimeout:             10 * time.Second,
			ReconnectInitialInterval: 500 * time.Millisecond,
			ReconnectMaxInterval:     15 * time.Second,
			ReconnectBudget:          2 * time.Minute,
		},
		Cache: CacheConfig{
			OlricServers: []string{"localhost:3320"},
			DMap:         "query-cache",
			Timeout:      10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Colors: true,
		},
		Gateway: GatewayConfig{
			Enabled:    false,
			ListenAddr: ":8090",
			Timeout:    30 * time.Second,
		},
	}
}
