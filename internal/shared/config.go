package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Backend     BackendConfig     `toml:"backend"`
	Plugin      PluginConfig      `toml:"plugin"`
	Database    DatabaseConfig    `toml:"database"`
	Storage     StorageConfig     `toml:"storage"`
	Server      ServerConfig      `toml:"server"`
	Integration IntegrationConfig `toml:"integration"`
}

// BackendConfig contains settings for the account backend that brokers the Spotify OAuth flow.
type BackendConfig struct {
	APIEndpoint    string  `toml:"api_endpoint"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	RateLimit      float64 `toml:"rate_limit"` // requests per second
}

// Timeout returns the HTTP timeout for backend calls. Zero means no timeout.
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// PluginConfig identifies this client to the backend.
type PluginConfig struct {
	Type    string `toml:"type"`
	ID      int    `toml:"id"`
	Version string `toml:"version"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// StorageConfig selects the backend for local key-value settings.
type StorageConfig struct {
	Driver    string `toml:"driver"` // sqlite or redis
	RedisURL  string `toml:"redis_url"`
	KeyPrefix string `toml:"key_prefix"`
}

// ServerConfig contains settings for the local callback listener.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// IntegrationConfig tunes the account lifecycle.
type IntegrationConfig struct {
	RefreshDelayMS int `toml:"refresh_delay_ms"`
}

// RefreshDelay is how long downstream refresh notifications wait after a disconnect.
func (i IntegrationConfig) RefreshDelay() time.Duration {
	return time.Duration(i.RefreshDelayMS) * time.Millisecond
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep their defaults from the embedded example config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
