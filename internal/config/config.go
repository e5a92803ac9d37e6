// ABOUTME: Configuration loading for the MMS bridge
// ABOUTME: Layers struct defaults, an optional YAML file, and MMS_ env vars via koanf
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, first match wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/mms-bridge/config.yaml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "MMS_CONFIG_PATH"

// envPrefix is stripped from environment variables before mapping to config
// paths: MMS_DEVICE_HOST -> device.host.
const envPrefix = "MMS_"

// Config is the full bridge configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Device  DeviceConfig  `koanf:"device"`
	Log     LogConfig     `koanf:"log"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// ServerConfig configures the client-facing HTTP/WebSocket server.
type ServerConfig struct {
	// Port for the web server.
	Port int `koanf:"port"`

	// StaticDir is served at the site root when non-empty.
	StaticDir string `koanf:"static_dir"`
}

// DeviceConfig configures the device-facing MMS connection.
type DeviceConfig struct {
	// Host is the controller address. May be left empty when Discover is set.
	Host string `koanf:"host"`

	// Port is the MMS control port.
	Port int `koanf:"port"`

	// ClientType and ClientVersion identify the bridge to the controller
	// during the bootstrap sequence.
	ClientType    string `koanf:"client_type"`
	ClientVersion string `koanf:"client_version"`

	// InitInterval paces the bootstrap command sequence.
	InitInterval time.Duration `koanf:"init_interval"`

	// CommandInterval paces translated client commands. The controller
	// drops commands sent faster than it can process them.
	CommandInterval time.Duration `koanf:"command_interval"`

	// StallTimeout bounds how long a partial protocol block is held before
	// the receive buffer is discarded.
	StallTimeout time.Duration `koanf:"stall_timeout"`

	// ArtPort is the controller's HTTP port for album art lookups.
	ArtPort int `koanf:"art_port"`

	// Discover enables mDNS discovery of the controller when Host is empty.
	Discover bool `koanf:"discover"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
}

// Default returns the built-in configuration, before any file or
// environment overrides.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      3000,
			StaticDir: "public",
		},
		Device: DeviceConfig{
			Host:            "",
			Port:            5004,
			ClientType:      "mms-bridge",
			ClientVersion:   "1.0.0.0",
			InitInterval:    250 * time.Millisecond,
			CommandInterval: 500 * time.Millisecond,
			StallTimeout:    30 * time.Second,
			ArtPort:         80,
			Discover:        false,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// MMS_-prefixed environment variables, in increasing priority. Validation
// is the caller's job: flag overrides and discovery may still fill in
// required fields after loading.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Device.Port <= 0 || c.Device.Port > 65535 {
		return fmt.Errorf("invalid device port %d", c.Device.Port)
	}
	if c.Device.Host == "" && !c.Device.Discover {
		return fmt.Errorf("device.host is required unless device.discover is enabled")
	}
	if c.Device.StallTimeout <= 0 {
		return fmt.Errorf("device.stall_timeout must be positive")
	}
	return nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransform maps MMS_DEVICE_COMMAND_INTERVAL to device.command_interval.
// The first underscore separates the section; the rest stay joined.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	parts := strings.SplitN(key, "_", 2)
	return strings.Join(parts, ".")
}
