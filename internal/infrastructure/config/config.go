package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the OVMS bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Vehicle  VehicleConfig  `yaml:"vehicle"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Command  CommandConfig  `yaml:"command"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// VehicleConfig identifies the vehicle module whose topic tree is ingested.
//
// Topics are rooted at {topic_prefix}/{account}/{id}.
type VehicleConfig struct {
	ID          string `yaml:"id"`
	Account     string `yaml:"account"`
	TopicPrefix string `yaml:"topic_prefix"`
	Name        string `yaml:"name"`

	// StaleAfter removes objects that have not been updated for this many
	// hours. Zero keeps objects forever.
	StaleAfter int `yaml:"stale_after"`

	// DeleteStaleHistory also deletes the state history of removed objects.
	DeleteStaleHistory bool `yaml:"delete_stale_history"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// HistoryRetention is how long state history rows are kept (hours).
	// Zero disables pruning.
	HistoryRetention int `yaml:"history_retention"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
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
	Insecure bool   `yaml:"insecure"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// CommandConfig contains settings for the request/response command channel.
type CommandConfig struct {
	// Timeout is the default reply timeout in seconds.
	Timeout int `yaml:"timeout"`

	// MaxPendingAge is the staleness ceiling in seconds after which the sweep
	// fails a pending command regardless of its own timeout.
	MaxPendingAge int `yaml:"max_pending_age"`

	// SweepInterval is how often the stale-command sweep runs (seconds).
	SweepInterval int `yaml:"sweep_interval"`

	RateLimit CommandRateLimitConfig `yaml:"rate_limit"`
}

// CommandRateLimitConfig bounds outbound command rate with a fixed window.
type CommandRateLimitConfig struct {
	Calls  int `yaml:"calls"`
	Period int `yaml:"period"`
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
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	Auth     APIAuthConfig    `yaml:"auth"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// APIAuthConfig contains bearer token settings for protected endpoints.
type APIAuthConfig struct {
	// Secret signs HS256 tokens. Empty disables the command endpoint.
	Secret string `yaml:"secret"`

	// TokenTTL is the lifetime of tokens issued by the CLI (minutes).
	TokenTTL int `yaml:"token_ttl"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
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
//  4. Derived values (client ID)
//
// Environment variables follow the pattern: OVMS_SECTION_KEY
// For example: OVMS_MQTT_HOST, OVMS_VEHICLE_ID
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

	if cfg.MQTT.Broker.ClientID == "" {
		cfg.MQTT.Broker.ClientID = DeriveClientID(cfg.MQTT.Broker.Host, cfg.MQTT.Auth.Username, cfg.Vehicle.ID)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Vehicle: VehicleConfig{
			TopicPrefix: "ovms",
		},
		Database: DatabaseConfig{
			Path:             "./data/ovms-bridge.db",
			WALMode:          true,
			BusyTimeout:      5,
			HistoryRetention: 168,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     30,
				MaxAttempts:  10,
			},
		},
		Command: CommandConfig{
			Timeout:       10,
			MaxPendingAge: 300,
			SweepInterval: 60,
			RateLimit: CommandRateLimitConfig{
				Calls:  5,
				Period: 60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			Auth: APIAuthConfig{
				TokenTTL: 1440,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: OVMS_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Vehicle
	if v := os.Getenv("OVMS_VEHICLE_ID"); v != "" {
		cfg.Vehicle.ID = v
	}
	if v := os.Getenv("OVMS_VEHICLE_ACCOUNT"); v != "" {
		cfg.Vehicle.Account = v
	}
	if v := os.Getenv("OVMS_TOPIC_PREFIX"); v != "" {
		cfg.Vehicle.TopicPrefix = v
	}
	if v := os.Getenv("OVMS_VEHICLE_STALE_AFTER"); v != "" {
		if hours, err := strconv.Atoi(v); err == nil {
			cfg.Vehicle.StaleAfter = hours
		}
	}

	// Database
	if v := os.Getenv("OVMS_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("OVMS_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("OVMS_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("OVMS_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("OVMS_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("OVMS_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("OVMS_API_SECRET"); v != "" {
		cfg.API.Auth.Secret = v
	}
}

// DeriveClientID builds a stable MQTT client identifier from the broker host,
// username and vehicle ID, so reconnects from the same installation reuse it.
func DeriveClientID(host, username, vehicleID string) string {
	sum := sha256.Sum256([]byte(host + "_" + username + "_" + vehicleID))
	return "ovms_bridge_" + hex.EncodeToString(sum[:])[:12]
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Vehicle validation
	if c.Vehicle.ID == "" {
		errs = append(errs, "vehicle.id is required")
	}
	if c.Vehicle.TopicPrefix == "" {
		errs = append(errs, "vehicle.topic_prefix is required")
	}
	for _, part := range []string{c.Vehicle.ID, c.Vehicle.Account, c.Vehicle.TopicPrefix} {
		if strings.ContainsAny(part, "+#") {
			errs = append(errs, "vehicle topic segments must not contain MQTT wildcards")
			break
		}
	}
	if c.Vehicle.StaleAfter < 0 {
		errs = append(errs, "vehicle.stale_after must not be negative")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Reconnect.InitialDelay <= 0 {
		errs = append(errs, "mqtt.reconnect.initial_delay must be positive")
	}
	if c.MQTT.Reconnect.MaxDelay < c.MQTT.Reconnect.InitialDelay {
		errs = append(errs, "mqtt.reconnect.max_delay must be >= initial_delay")
	}
	if c.MQTT.Reconnect.MaxAttempts < 0 {
		errs = append(errs, "mqtt.reconnect.max_attempts must not be negative")
	}

	// Command validation
	if c.Command.Timeout <= 0 {
		errs = append(errs, "command.timeout must be positive")
	}
	if c.Command.RateLimit.Calls <= 0 || c.Command.RateLimit.Period <= 0 {
		errs = append(errs, "command.rate_limit.calls and period must be positive")
	}
	if c.Command.MaxPendingAge < c.Command.Timeout {
		errs = append(errs, "command.max_pending_age must be >= command.timeout")
	}
	if c.Command.SweepInterval <= 0 {
		errs = append(errs, "command.sweep_interval must be positive")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when enabled")
	}

	// API validation
	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}
		const minSecretLength = 32
		if c.API.Auth.Secret != "" && len(c.API.Auth.Secret) < minSecretLength {
			errs = append(errs, "api.auth.secret must be at least 32 characters")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// BaseTopic returns the structure prefix {prefix}/{account}/{id} for the vehicle.
// An empty account collapses to {prefix}/{id}.
func (v VehicleConfig) BaseTopic() string {
	parts := []string{v.TopicPrefix}
	if v.Account != "" {
		parts = append(parts, v.Account)
	}
	parts = append(parts, v.ID)
	return strings.Join(parts, "/")
}

// DisplayName returns the configured vehicle name, falling back to the ID.
func (v VehicleConfig) DisplayName() string {
	if v.Name != "" {
		return v.Name
	}
	return v.ID
}

// ReadTimeout returns the read timeout as a Duration.
func (t APITimeoutConfig) ReadTimeout() time.Duration {
	return time.Duration(t.Read) * time.Second
}

// WriteTimeout returns the write timeout as a Duration.
func (t APITimeoutConfig) WriteTimeout() time.Duration {
	return time.Duration(t.Write) * time.Second
}

// IdleTimeout returns the idle timeout as a Duration.
func (t APITimeoutConfig) IdleTimeout() time.Duration {
	return time.Duration(t.Idle) * time.Second
}
