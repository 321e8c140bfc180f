package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for fireplaced.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Fireplace FireplaceConfig `yaml:"fireplace"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// FireplaceConfig contains the Telnet bridge connection and protocol timing
// settings for the IFC board.
type FireplaceConfig struct {
	// Host is the address of the serial-to-network bridge.
	Host string `yaml:"host"`

	// Port is the TCP port of the bridge. Default: 10001.
	Port int `yaml:"port"`

	// ScanInterval is the periodic full-refresh interval in seconds.
	// Default: 300 (5 minutes).
	ScanInterval int `yaml:"scan_interval"`

	// ConnectTimeout is the TCP dial timeout in seconds. Default: 10.
	ConnectTimeout int `yaml:"connect_timeout"`

	// ReadTimeout is the per-read deadline in seconds. A read timeout is
	// treated as keepalive (the board is simply quiet), not as failure.
	// Default: 30.
	ReadTimeout int `yaml:"read_timeout"`

	// CommandInterval is the minimum spacing between dispatched commands
	// in milliseconds. Default: 1000.
	CommandInterval int `yaml:"command_interval"`

	// ResponseTimeout is how long a pending GET or SET waits for its
	// correlated response, in milliseconds. Default: 2000.
	ResponseTimeout int `yaml:"response_timeout"`

	// QueueSize bounds the outbound command queue. Enqueues beyond this
	// are rejected. Default: 100.
	QueueSize int `yaml:"queue_size"`

	// BackoffBase is the initial reconnect delay in seconds. Default: 10.
	BackoffBase int `yaml:"backoff_base"`

	// BackoffMax caps the reconnect delay in seconds. Default: 3600.
	BackoffMax int `yaml:"backoff_max"`

	// SettleDelay is the fixed wait after connecting before the initial
	// refresh sweep, in seconds. The board drops commands sent while it
	// is still settling. Default: 10.
	SettleDelay int `yaml:"settle_delay"`

	// ProbeTimeout is the dial timeout for throwaway connectivity probes
	// in seconds. Default: 5.
	ProbeTimeout int `yaml:"probe_timeout"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// RetentionDays bounds how long state history rows are kept. Rows
	// older than this are pruned daily. 0 disables pruning. Default: 90.
	RetentionDays int `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FIREPLACE_SECTION_KEY
// For example: FIREPLACE_HOST, FIREPLACE_DATABASE_PATH, FIREPLACE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
// Protocol timing defaults match the IFC board's documented tolerances.
func defaultConfig() *Config {
	return &Config{
		Fireplace: FireplaceConfig{
			Port:            10001,
			ScanInterval:    300,
			ConnectTimeout:  10,
			ReadTimeout:     30,
			CommandInterval: 1000,
			ResponseTimeout: 2000,
			QueueSize:       100,
			BackoffBase:     10,
			BackoffMax:      3600,
			SettleDelay:     10,
			ProbeTimeout:    5,
		},
		Database: DatabaseConfig{
			Path:          "./data/fireplaced.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 90,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "fireplaced",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: FIREPLACE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Fireplace connection
	if v := os.Getenv("FIREPLACE_HOST"); v != "" {
		cfg.Fireplace.Host = v
	}
	if v := os.Getenv("FIREPLACE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Fireplace.Port = port
		}
	}

	// Database
	if v := os.Getenv("FIREPLACE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("FIREPLACE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FIREPLACE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FIREPLACE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("FIREPLACE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("FIREPLACE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Fireplace.Host == "" {
		errs = append(errs, "fireplace.host is required")
	}
	if c.Fireplace.Port < 1 || c.Fireplace.Port > 65535 {
		errs = append(errs, "fireplace.port must be between 1 and 65535")
	}
	if c.Fireplace.QueueSize < 1 {
		errs = append(errs, "fireplace.queue_size must be at least 1")
	}
	if c.Fireplace.CommandInterval < 0 {
		errs = append(errs, "fireplace.command_interval must not be negative")
	}
	if c.Fireplace.BackoffBase < 1 {
		errs = append(errs, "fireplace.backoff_base must be at least 1")
	}
	if c.Fireplace.BackoffMax < c.Fireplace.BackoffBase {
		errs = append(errs, "fireplace.backoff_max must not be less than backoff_base")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.RetentionDays < 0 {
		errs = append(errs, "database.retention_days must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Address returns the fireplace bridge address in host:port form.
func (c *FireplaceConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetScanInterval returns the periodic refresh interval as a Duration.
func (c *FireplaceConfig) GetScanInterval() time.Duration {
	return time.Duration(c.ScanInterval) * time.Second
}

// GetConnectTimeout returns the dial timeout as a Duration.
func (c *FireplaceConfig) GetConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

// GetReadTimeout returns the read deadline as a Duration.
func (c *FireplaceConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeout) * time.Second
}

// GetCommandInterval returns the inter-command spacing as a Duration.
func (c *FireplaceConfig) GetCommandInterval() time.Duration {
	return time.Duration(c.CommandInterval) * time.Millisecond
}

// GetResponseTimeout returns the pending-request timeout as a Duration.
func (c *FireplaceConfig) GetResponseTimeout() time.Duration {
	return time.Duration(c.ResponseTimeout) * time.Millisecond
}

// GetBackoffBase returns the initial reconnect delay as a Duration.
func (c *FireplaceConfig) GetBackoffBase() time.Duration {
	return time.Duration(c.BackoffBase) * time.Second
}

// GetBackoffMax returns the reconnect delay cap as a Duration.
func (c *FireplaceConfig) GetBackoffMax() time.Duration {
	return time.Duration(c.BackoffMax) * time.Second
}

// GetSettleDelay returns the post-connect settle delay as a Duration.
func (c *FireplaceConfig) GetSettleDelay() time.Duration {
	return time.Duration(c.SettleDelay) * time.Second
}

// GetProbeTimeout returns the probe dial timeout as a Duration.
func (c *FireplaceConfig) GetProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}
