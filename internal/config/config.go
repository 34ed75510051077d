// Package config loads and defaults the server's YAML configuration
// document, per spec.md §6.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TLSConfig carries the server's certificate material and negotiated
// protocol preferences, per spec.md §6's tls_* keys.
type TLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CertPath   string `yaml:"cert_path"`
	KeyPath    string `yaml:"key_path"`
	ClientAuth bool   `yaml:"client_auth"`
	ClientCA   string `yaml:"client_ca_path"`
}

// HTTP2Config carries the settings frame values and H2C toggle of
// spec.md §6/§4.5.
type HTTP2Config struct {
	Enabled            bool `yaml:"h2_enabled"`
	H2CEnabled         bool `yaml:"h2c_enabled"`
	H2CMaxContentLen   int  `yaml:"h2c_max_content_length"`
	MaxConcurrentStreams uint32 `yaml:"max_concurrent_streams"`
	InitialWindowSize    uint32 `yaml:"initial_window_size"`
	MaxFrameSize         uint32 `yaml:"max_frame_size"`
	MaxHeaderListSize    uint32 `yaml:"max_header_list_size"`
}

// CompressionConfig carries the thresholds and content-coding preference
// of spec.md §6's compression keys.
type CompressionConfig struct {
	Enabled           bool     `yaml:"compression_enabled"`
	ContentSizeThreshold int   `yaml:"compression_content_size_threshold"`
	AllowedCodings    []string `yaml:"compression_allowed_codings"`

	// DecompressionEnabled gates transparent decoding of an inbound
	// request body's Content-Encoding; it is independent of Enabled,
	// which only governs outbound response compression.
	DecompressionEnabled bool `yaml:"decompression_enabled"`
}

// HTTP1Config carries the connection-level parsing limits of spec.md
// §4.4's decoder-error classification (over-long request line vs
// over-long header).
type HTTP1Config struct {
	MaxRequestLineSize int `yaml:"http1_max_request_line_size"`
	MaxHeaderSize       int `yaml:"http1_max_header_size"`
}

// WebSocketConfig carries the ws_* keys of spec.md §6/§4.8.
type WebSocketConfig struct {
	Enabled             bool          `yaml:"ws_enabled"`
	MaxFrameSize        int64         `yaml:"ws_max_frame_size"`
	MaxMessageSize      int64         `yaml:"ws_max_message_size"`
	HandshakeTimeoutMS  int           `yaml:"ws_handshake_timeout_ms"`
	PingIntervalMS      int           `yaml:"ws_ping_interval_ms"`
	CloseTimeoutMS      int           `yaml:"ws_close_timeout_ms"`
	PermessageDeflate   bool          `yaml:"ws_permessage_deflate"`
	Subprotocols        []string      `yaml:"ws_subprotocols"`
}

func (c WebSocketConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutMS) * time.Millisecond
}
func (c WebSocketConfig) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalMS) * time.Millisecond
}
func (c WebSocketConfig) CloseTimeout() time.Duration {
	return time.Duration(c.CloseTimeoutMS) * time.Millisecond
}

// AdminConfig is an additive component (SPEC_FULL.md §4.7): a small
// control-plane HTTP surface separate from the reactive core, exposing
// health and route introspection.
type AdminConfig struct {
	Listen              string   `yaml:"admin_listen"`
	CORSAllowedOrigins  []string `yaml:"admin_cors_allowed_origins"`
}

// Config is the root configuration document of spec.md §6.
type Config struct {
	ServerHost             string `yaml:"server_host"`
	ServerPort             int    `yaml:"server_port"`
	ServerEventLoopGroupSize int  `yaml:"server_event_loop_group_size"`

	GracefulShutdown          bool `yaml:"graceful_shutdown"`
	GracefulShutdownTimeoutMS int  `yaml:"graceful_shutdown_timeout_ms"`

	TLS         TLSConfig         `yaml:"tls"`
	HTTP1       HTTP1Config       `yaml:"http1"`
	HTTP2       HTTP2Config       `yaml:"http2"`
	Compression CompressionConfig `yaml:"compression"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	Admin       AdminConfig       `yaml:"admin"`
}

func (c Config) GracefulShutdownTimeout() time.Duration {
	return time.Duration(c.GracefulShutdownTimeoutMS) * time.Millisecond
}

// Default returns a Config populated with the teacher-style sane
// defaults, used by LoadConfig as the unmarshal target so a
// partially-specified document still yields a runnable server.
func Default() *Config {
	return &Config{
		ServerHost:               "0.0.0.0",
		ServerPort:               8080,
		ServerEventLoopGroupSize: 0, // 0 = runtime.GOMAXPROCS(0)
		GracefulShutdown:          true,
		GracefulShutdownTimeoutMS: 30_000,
		HTTP1: HTTP1Config{
			MaxRequestLineSize: 8192,
			MaxHeaderSize:      8192,
		},
		HTTP2: HTTP2Config{
			Enabled:              true,
			H2CEnabled:           false,
			H2CMaxContentLen:     0,
			MaxConcurrentStreams: 250,
			InitialWindowSize:    65535,
			MaxFrameSize:         16384,
			MaxHeaderListSize:    1 << 20,
		},
		Compression: CompressionConfig{
			Enabled:              true,
			ContentSizeThreshold: 2048,
			AllowedCodings:       []string{"gzip", "deflate"},
			DecompressionEnabled: true,
		},
		WebSocket: WebSocketConfig{
			Enabled:            true,
			MaxFrameSize:       1 << 20,
			MaxMessageSize:     4 << 20,
			HandshakeTimeoutMS: 10_000,
			PingIntervalMS:     30_000,
			CloseTimeoutMS:     5_000,
			PermessageDeflate:  true,
		},
		Admin: AdminConfig{
			Listen: "",
		},
	}
}

// LoadConfig reads and parses the YAML document at path, applying
// Default() as the unmarshal target's initial value, so keys the document
// omits keep their defaults while keys it sets explicitly (even to zero)
// win, following the teacher's LoadConfig(path) (*Config, error) idiom.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the cross-field invariants spec.md §6 requires (TLS
// material present when enabled, positive port, consistent H2C setup).
func (c *Config) Validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid server_port: %d", c.ServerPort)
	}
	if c.TLS.Enabled {
		if c.TLS.CertPath == "" || c.TLS.KeyPath == "" {
			return fmt.Errorf("tls.enabled requires cert_path and key_path")
		}
	}
	if c.HTTP2.H2CEnabled && c.TLS.Enabled {
		return fmt.Errorf("h2c_enabled is only meaningful over cleartext connections")
	}
	return nil
}
