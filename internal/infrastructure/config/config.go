package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Keygrid Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Devices  DevicesConfig  `yaml:"devices"`
	Plugins  PluginsConfig  `yaml:"plugins"`
	Socket   SocketConfig   `yaml:"socket"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Virtual  VirtualConfig  `yaml:"virtual"`
}

// DevicesConfig contains device session and persistence settings.
type DevicesConfig struct {
	// ConfigDir holds one <serial>.json file per managed device.
	ConfigDir string `yaml:"config_dir"`

	// ReconnectInterval is how often closed sessions are retried (seconds).
	ReconnectInterval int `yaml:"reconnect_interval"`

	// PollRateHz bounds how often each session polls its device for input.
	PollRateHz int `yaml:"poll_rate_hz"`

	// CommandQueueSize is the capacity of each session's render/command queue.
	CommandQueueSize int `yaml:"command_queue_size"`

	// Watch enables reloading a device when its config file is edited externally.
	Watch bool `yaml:"watch"`
}

// PluginsConfig contains external module settings.
type PluginsConfig struct {
	// Dir is scanned once at startup for plugin directories containing plugin.toml.
	Dir string `yaml:"dir"`

	// RequestTimeout bounds each synchronous call into a plugin process (seconds).
	RequestTimeout int `yaml:"request_timeout"`
}

// SocketConfig contains control protocol listener settings.
type SocketConfig struct {
	Path           string           `yaml:"path"`
	MaxMessageSize int              `yaml:"max_message_size"`
	PingInterval   int              `yaml:"ping_interval"`
	PongTimeout    int              `yaml:"pong_timeout"`
	Timeouts       APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// VirtualConfig lists simulated devices exposed by the built-in virtual driver.
type VirtualConfig struct {
	Devices []VirtualDeviceConfig `yaml:"devices"`
}

// VirtualDeviceConfig describes one simulated button grid.
type VirtualDeviceConfig struct {
	Serial string `yaml:"serial"`

	// Rows is the number of keys in each row, e.g. [5, 5, 5] for a 3x5 grid.
	Rows []int `yaml:"rows"`

	// ImageSize is the square key image edge in pixels. Zero means no screen.
	ImageSize int `yaml:"image_size"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: KEYGRID_SECTION_KEY
// For example: KEYGRID_DEVICES_CONFIG_DIR, KEYGRID_SOCKET_PATH
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

// Default returns the built-in configuration without reading any file.
// Used when no config file exists on first run.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Devices: DevicesConfig{
			ConfigDir:         "./data/devices",
			ReconnectInterval: 5,
			PollRateHz:        100,
			CommandQueueSize:  64,
			Watch:             true,
		},
		Plugins: PluginsConfig{
			Dir:            "./plugins",
			RequestTimeout: 5,
		},
		Socket: SocketConfig{
			Path:           "/tmp/keygrid.sock",
			MaxMessageSize: 4 << 20,
			PingInterval:   30,
			PongTimeout:    10,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/keygrid.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "keygrid-core",
			},
			QoS:         1,
			TopicPrefix: "keygrid",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: KEYGRID_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Devices
	if v := os.Getenv("KEYGRID_DEVICES_CONFIG_DIR"); v != "" {
		cfg.Devices.ConfigDir = v
	}
	if v := os.Getenv("KEYGRID_PLUGINS_DIR"); v != "" {
		cfg.Plugins.Dir = v
	}

	// Socket
	if v := os.Getenv("KEYGRID_SOCKET_PATH"); v != "" {
		cfg.Socket.Path = v
	}

	// Database
	if v := os.Getenv("KEYGRID_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("KEYGRID_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("KEYGRID_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("KEYGRID_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("KEYGRID_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("KEYGRID_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("KEYGRID_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Devices.ConfigDir == "" {
		errs = append(errs, "devices.config_dir is required")
	}
	if c.Devices.ReconnectInterval < 1 {
		errs = append(errs, "devices.reconnect_interval must be at least 1 second")
	}
	if c.Devices.PollRateHz < 1 || c.Devices.PollRateHz > 1000 {
		errs = append(errs, "devices.poll_rate_hz must be between 1 and 1000")
	}
	if c.Devices.CommandQueueSize < 1 {
		errs = append(errs, "devices.command_queue_size must be positive")
	}

	if c.Socket.Path == "" {
		errs = append(errs, "socket.path is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	seen := make(map[string]bool, len(c.Virtual.Devices))
	for i, d := range c.Virtual.Devices {
		if d.Serial == "" {
			errs = append(errs, fmt.Sprintf("virtual.devices[%d].serial is required", i))
		} else if seen[d.Serial] {
			errs = append(errs, fmt.Sprintf("virtual.devices[%d].serial %q is duplicated", i, d.Serial))
		}
		seen[d.Serial] = true
		if len(d.Rows) == 0 {
			errs = append(errs, fmt.Sprintf("virtual.devices[%d].rows must not be empty", i))
		}
		total := 0
		for _, r := range d.Rows {
			total += r
		}
		if total > 256 {
			errs = append(errs, fmt.Sprintf("virtual.devices[%d] has more than 256 keys", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReconnectInterval returns the session reconnection interval as a Duration.
func (c *Config) GetReconnectInterval() time.Duration {
	return time.Duration(c.Devices.ReconnectInterval) * time.Second
}

// GetPluginRequestTimeout returns the plugin call timeout as a Duration.
func (c *Config) GetPluginRequestTimeout() time.Duration {
	if c.Plugins.RequestTimeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Plugins.RequestTimeout) * time.Second
}
