package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
fireplace:
  host: "192.168.1.50"
  port: 10001
  scan_interval: 60
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8090
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

	if cfg.Fireplace.Host != "192.168.1.50" {
		t.Errorf("Fireplace.Host = %q, want %q", cfg.Fireplace.Host, "192.168.1.50")
	}

	if cfg.Fireplace.ScanInterval != 60 {
		t.Errorf("Fireplace.ScanInterval = %d, want 60", cfg.Fireplace.ScanInterval)
	}

	// Values absent from the file keep their defaults.
	if cfg.Fireplace.QueueSize != 100 {
		t.Errorf("Fireplace.QueueSize = %d, want default 100", cfg.Fireplace.QueueSize)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	// Missing fireplace.host must fail validation.
	content := `
database:
  path: "/tmp/test.db"
api:
  port: 8090
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for missing fireplace.host, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Fireplace.Host = "192.168.1.50"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing host",
			mutate:  func(c *Config) { c.Fireplace.Host = "" },
			wantErr: true,
		},
		{
			name:    "invalid fireplace port",
			mutate:  func(c *Config) { c.Fireplace.Port = 0 },
			wantErr: true,
		},
		{
			name:    "zero queue size",
			mutate:  func(c *Config) { c.Fireplace.QueueSize = 0 },
			wantErr: true,
		},
		{
			name:    "backoff max below base",
			mutate:  func(c *Config) { c.Fireplace.BackoffMax = 5 },
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "negative retention",
			mutate:  func(c *Config) { c.Database.RetentionDays = -1 },
			wantErr: true,
		},
		{
			name:    "retention disabled",
			mutate:  func(c *Config) { c.Database.RetentionDays = 0 },
			wantErr: false,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid API port",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("FIREPLACE_HOST", "10.0.0.9")
	t.Setenv("FIREPLACE_PORT", "2323")
	t.Setenv("FIREPLACE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("FIREPLACE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("FIREPLACE_MQTT_USERNAME", "testuser")
	t.Setenv("FIREPLACE_MQTT_PASSWORD", "testpass")
	t.Setenv("FIREPLACE_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.Fireplace.Host != "10.0.0.9" {
		t.Errorf("Fireplace.Host = %q, want %q", cfg.Fireplace.Host, "10.0.0.9")
	}

	if cfg.Fireplace.Port != 2323 {
		t.Errorf("Fireplace.Port = %d, want 2323", cfg.Fireplace.Port)
	}

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}

	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestFireplaceConfig_Durations(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.Fireplace.GetCommandInterval().Milliseconds(); got != 1000 {
		t.Errorf("GetCommandInterval() = %dms, want 1000ms", got)
	}

	if got := cfg.Fireplace.GetResponseTimeout().Milliseconds(); got != 2000 {
		t.Errorf("GetResponseTimeout() = %dms, want 2000ms", got)
	}

	if got := cfg.Fireplace.GetBackoffBase().Seconds(); got != 10 {
		t.Errorf("GetBackoffBase() = %vs, want 10s", got)
	}

	if got := cfg.Fireplace.GetBackoffMax().Seconds(); got != 3600 {
		t.Errorf("GetBackoffMax() = %vs, want 3600s", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Fireplace.Port != 10001 {
		t.Errorf("defaultConfig Fireplace.Port = %d, want 10001", cfg.Fireplace.Port)
	}

	if cfg.Fireplace.ScanInterval != 300 {
		t.Errorf("defaultConfig Fireplace.ScanInterval = %d, want 300", cfg.Fireplace.ScanInterval)
	}

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}

	if cfg.Database.RetentionDays != 90 {
		t.Errorf("defaultConfig Database.RetentionDays = %d, want 90", cfg.Database.RetentionDays)
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
}
