package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source modes. Exactly one ingestion source runs per process.
const (
	ModeDecoder = "decoder"
	ModeJSON    = "json"
)

// Config is the root configuration structure for rrconverter.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Decoder   DecoderConfig   `yaml:"decoder"`
	JSON      JSONConfig      `yaml:"json"`
	Hub       HubConfig       `yaml:"hub"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`

	// Debug echoes raw JSON input and normalised output at debug level.
	Debug bool `yaml:"debug"`
}

// SourceConfig selects the ingestion mode.
type SourceConfig struct {
	// Mode is "decoder" (native line protocol) or "json" (JSON-line listener).
	Mode string `yaml:"mode"`
}

// DecoderConfig contains timing decoder connection settings.
type DecoderConfig struct {
	// Host is the decoder address. Empty means discover it by scanning Subnet.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Subnet is a /24 prefix such as "192.168.1." used for discovery.
	// Empty means derive it from the first non-loopback IPv4 address.
	Subnet string `yaml:"subnet"`

	// All durations below are in seconds, except ScanTimeoutMS.
	ConnectTimeout int `yaml:"connect_timeout"`
	ReconnectDelay int `yaml:"reconnect_delay"`
	PingInterval   int `yaml:"ping_interval"`
	WriteTimeout   int `yaml:"write_timeout"`
	ScanTimeoutMS  int `yaml:"scan_timeout_ms"`
}

// JSONConfig contains the JSON-line ingestion listener settings.
type JSONConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// HubConfig contains distribution hub settings.
type HubConfig struct {
	// BufferSize is the per-subscriber backlog before oldest messages are dropped.
	BufferSize int `yaml:"buffer_size"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
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

// MQTTConfig contains MQTT broker connection settings for the passing relay.
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

// InfluxDBConfig contains InfluxDB connection settings for pipeline telemetry.
type InfluxDBConfig struct {
	Enabled        bool   `yaml:"enabled"`
	URL            string `yaml:"url"`
	Token          string `yaml:"token"`
	Org            string `yaml:"org"`
	Bucket         string `yaml:"bucket"`
	BatchSize      int    `yaml:"batch_size"`
	FlushInterval  int    `yaml:"flush_interval"`
	ReportInterval int    `yaml:"report_interval"`
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
// Environment variables follow the pattern: RRCONVERTER_SECTION_KEY
// For example: RRCONVERTER_DECODER_HOST, RRCONVERTER_API_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	return load(path, false)
}

// LoadOptional behaves like Load but treats a missing file as empty,
// so the binary runs on defaults and environment overrides alone.
func LoadOptional(path string) (*Config, error) {
	return load(path, true)
}

func load(path string, optional bool) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case optional && errors.Is(err, fs.ErrNotExist):
		// Defaults only.
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Mode: ModeDecoder,
		},
		Decoder: DecoderConfig{
			Port:           3601,
			ConnectTimeout: 5,
			ReconnectDelay: 5,
			PingInterval:   30,
			WriteTimeout:   5,
			ScanTimeoutMS:  200,
		},
		JSON: JSONConfig{
			Host: "0.0.0.0",
			Port: 3602,
		},
		Hub: HubConfig{
			BufferSize: 100,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
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
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "rrconverter",
			},
			QoS:         0,
			TopicPrefix: "rrconverter",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			URL:            "http://localhost:8086",
			BatchSize:      100,
			FlushInterval:  10,
			ReportInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: RRCONVERTER_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Source
	if v := os.Getenv("RRCONVERTER_SOURCE_MODE"); v != "" {
		cfg.Source.Mode = v
	}

	// Decoder
	if v := os.Getenv("RRCONVERTER_DECODER_HOST"); v != "" {
		cfg.Decoder.Host = v
	}
	if v := os.Getenv("RRCONVERTER_DECODER_SUBNET"); v != "" {
		cfg.Decoder.Subnet = v
	}

	// API
	if v := os.Getenv("RRCONVERTER_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// MQTT
	if v := os.Getenv("RRCONVERTER_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("RRCONVERTER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("RRCONVERTER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("RRCONVERTER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("RRCONVERTER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	switch c.Source.Mode {
	case ModeDecoder, ModeJSON:
	default:
		errs = append(errs, fmt.Sprintf("source.mode must be %q or %q", ModeDecoder, ModeJSON))
	}

	if !validPort(c.Decoder.Port) {
		errs = append(errs, "decoder.port must be between 1 and 65535")
	}
	if c.Decoder.ReconnectDelay < 0 || c.Decoder.PingInterval < 0 || c.Decoder.ConnectTimeout < 0 {
		errs = append(errs, "decoder timings must not be negative")
	}

	if c.Source.Mode == ModeJSON && !validPort(c.JSON.Port) {
		errs = append(errs, "json.port must be between 1 and 65535")
	}

	if c.Hub.BufferSize < 1 {
		errs = append(errs, "hub.buffer_size must be at least 1")
	}

	if !validPort(c.API.Port) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if !strings.HasPrefix(c.WebSocket.Path, "/") {
		errs = append(errs, "websocket.path must start with /")
	}

	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.TopicPrefix == "" {
			errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
		}
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

// DecoderAddress returns host:port for the configured decoder, or "" when
// the host must be discovered.
func (c *Config) DecoderAddress() string {
	if c.Decoder.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Decoder.Host, c.Decoder.Port)
}

// JSONListenAddress returns host:port for the JSON ingestion listener.
func (c *Config) JSONListenAddress() string {
	return fmt.Sprintf("%s:%d", c.JSON.Host, c.JSON.Port)
}
