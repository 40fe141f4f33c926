package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
vehicle:
  id: "car1"
  account: "alice"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
command:
  timeout: 15
  rate_limit:
    calls: 3
    period: 30
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Vehicle.ID != "car1" {
		t.Errorf("Vehicle.ID = %q, want %q", cfg.Vehicle.ID, "car1")
	}
	if got := cfg.Vehicle.BaseTopic(); got != "ovms/alice/car1" {
		t.Errorf("BaseTopic() = %q, want %q", got, "ovms/alice/car1")
	}
	if cfg.Command.Timeout != 15 {
		t.Errorf("Command.Timeout = %d, want 15", cfg.Command.Timeout)
	}
	if cfg.Command.RateLimit.Calls != 3 || cfg.Command.RateLimit.Period != 30 {
		t.Errorf("Command.RateLimit = %+v, want {3 30}", cfg.Command.RateLimit)
	}
	// Unset sections keep their defaults
	if cfg.Command.MaxPendingAge != 300 {
		t.Errorf("Command.MaxPendingAge = %d, want 300", cfg.Command.MaxPendingAge)
	}
	if cfg.MQTT.Reconnect.MaxDelay != 30 {
		t.Errorf("MQTT.Reconnect.MaxDelay = %d, want 30", cfg.MQTT.Reconnect.MaxDelay)
	}
}

func TestLoad_DerivesClientID(t *testing.T) {
	content := `
vehicle:
  id: "car1"
mqtt:
  broker:
    host: "broker.example.com"
  auth:
    username: "alice"
`
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := DeriveClientID("broker.example.com", "alice", "car1")
	if cfg.MQTT.Broker.ClientID != want {
		t.Errorf("ClientID = %q, want %q", cfg.MQTT.Broker.ClientID, want)
	}
	if !strings.HasPrefix(want, "ovms_bridge_") || len(want) != len("ovms_bridge_")+12 {
		t.Errorf("DeriveClientID() = %q, want ovms_bridge_ + 12 hex chars", want)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
vehicle:
  id: ""
`
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty vehicle.id, got nil")
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Vehicle.ID = "car1"
	cfg.Vehicle.Account = "alice"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}, wantErr: false},
		{name: "missing vehicle ID", mutate: func(c *Config) { c.Vehicle.ID = "" }, wantErr: true},
		{name: "wildcard in account", mutate: func(c *Config) { c.Vehicle.Account = "al+ce" }, wantErr: true},
		{name: "negative stale_after", mutate: func(c *Config) { c.Vehicle.StaleAfter = -1 }, wantErr: true},
		{name: "stale_after enabled", mutate: func(c *Config) { c.Vehicle.StaleAfter = 24 }, wantErr: false},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "invalid broker port", mutate: func(c *Config) { c.MQTT.Broker.Port = 0 }, wantErr: true},
		{name: "max delay below initial", mutate: func(c *Config) { c.MQTT.Reconnect.MaxDelay = 0 }, wantErr: true},
		{name: "zero rate limit", mutate: func(c *Config) { c.Command.RateLimit.Calls = 0 }, wantErr: true},
		{name: "pending age below timeout", mutate: func(c *Config) { c.Command.MaxPendingAge = 5 }, wantErr: true},
		{name: "influx enabled without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: true},
		{name: "short api secret", mutate: func(c *Config) { c.API.Auth.Secret = "short" }, wantErr: true},
		{name: "api disabled ignores port", mutate: func(c *Config) { c.API.Enabled = false; c.API.Port = 0 }, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestVehicleConfig_BaseTopic(t *testing.T) {
	tests := []struct {
		name string
		cfg  VehicleConfig
		want string
	}{
		{"with account", VehicleConfig{TopicPrefix: "ovms", Account: "alice", ID: "car1"}, "ovms/alice/car1"},
		{"without account", VehicleConfig{TopicPrefix: "ovms", ID: "car1"}, "ovms/car1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.BaseTopic(); got != tt.want {
				t.Errorf("BaseTopic() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAPITimeoutConfig_Durations(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.API.Timeouts.ReadTimeout().Seconds(); got != 30 {
		t.Errorf("ReadTimeout() = %v, want 30", got)
	}
	if got := cfg.API.Timeouts.WriteTimeout().Seconds(); got != 45 {
		t.Errorf("WriteTimeout() = %v, want 45", got)
	}
	if got := cfg.API.Timeouts.IdleTimeout().Seconds(); got != 60 {
		t.Errorf("IdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("OVMS_VEHICLE_ID", "car9")
	t.Setenv("OVMS_VEHICLE_ACCOUNT", "bob")
	t.Setenv("OVMS_VEHICLE_STALE_AFTER", "48")
	t.Setenv("OVMS_DATABASE_PATH", "/custom/path.db")
	t.Setenv("OVMS_MQTT_HOST", "mqtt.example.com")
	t.Setenv("OVMS_MQTT_PORT", "8883")
	t.Setenv("OVMS_MQTT_USERNAME", "testuser")
	t.Setenv("OVMS_MQTT_PASSWORD", "testpass")
	t.Setenv("OVMS_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("OVMS_API_SECRET", "api-secret")

	applyEnvOverrides(cfg)

	if cfg.Vehicle.ID != "car9" {
		t.Errorf("Vehicle.ID = %q, want %q", cfg.Vehicle.ID, "car9")
	}
	if cfg.Vehicle.Account != "bob" {
		t.Errorf("Vehicle.Account = %q, want %q", cfg.Vehicle.Account, "bob")
	}
	if cfg.Vehicle.StaleAfter != 48 {
		t.Errorf("Vehicle.StaleAfter = %d, want 48", cfg.Vehicle.StaleAfter)
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.API.Auth.Secret != "api-secret" {
		t.Errorf("API.Auth.Secret = %q, want %q", cfg.API.Auth.Secret, "api-secret")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Vehicle.TopicPrefix != "ovms" {
		t.Errorf("defaultConfig Vehicle.TopicPrefix = %q, want %q", cfg.Vehicle.TopicPrefix, "ovms")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Reconnect.InitialDelay != 1 || cfg.MQTT.Reconnect.MaxDelay != 30 {
		t.Errorf("defaultConfig reconnect = %+v, want 1s..30s", cfg.MQTT.Reconnect)
	}
	if cfg.Command.RateLimit.Calls != 5 || cfg.Command.RateLimit.Period != 60 {
		t.Errorf("defaultConfig rate limit = %+v, want 5/60s", cfg.Command.RateLimit)
	}
	if cfg.Command.Timeout != 10 {
		t.Errorf("defaultConfig Command.Timeout = %d, want 10", cfg.Command.Timeout)
	}
}
