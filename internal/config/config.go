// Package config resolves hbagent's configuration using Viper, layering
// flags over environment variables over a config file over built-in
// defaults.
//
// Most settings follow the AGENT_* environment variable convention, but the
// bearer token and server URL use bare names (CLI_TOKEN, SERVER_URL) per the
// control loop's external interface, so they're bound individually rather
// than through the AGENT env prefix.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultServerURL is the default control-plane endpoint.
	DefaultServerURL = "https://api.hbagent.dev"
	// DefaultHTTPTimeout bounds a single heartbeat HTTP call.
	DefaultHTTPTimeout = 10 * time.Second
	// DefaultIdleIntervalMS is the heartbeat delay while the agent is idle.
	DefaultIdleIntervalMS = 5000
	// DefaultBusyIntervalMS is the heartbeat delay while any shell is managed.
	DefaultBusyIntervalMS = 2000
	// DefaultLogLevel is the structured logger's default level.
	DefaultLogLevel = "info"
	// DefaultLogFormat is the structured logger's default encoding.
	DefaultLogFormat = "json"
)

// Config holds the resolved hbagent configuration.
type Config struct {
	v *viper.Viper
}

// Load reads configuration from environment variables, the config file, and
// built-in defaults, in that priority order. Flags are not bound here; the
// commands in cmd/hbagent apply a flag over these values when it is set.
func Load() *Config {
	v := viper.New()

	v.SetDefault("server.url", DefaultServerURL)
	v.SetDefault("http.timeout", DefaultHTTPTimeout)
	v.SetDefault("interval.idle_ms", DefaultIdleIntervalMS)
	v.SetDefault("interval.busy_ms", DefaultBusyIntervalMS)
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)

	home, err := os.UserHomeDir()
	if err == nil {
		configDir := filepath.Join(home, ".config", "hbagent")
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bare-name env vars outside the AGENT_ prefix convention.
	_ = v.BindEnv("token", "CLI_TOKEN")
	_ = v.BindEnv("server.url", "SERVER_URL")

	// The automatic replacer would derive AGENT_INTERVAL_IDLE_MS /
	// AGENT_INTERVAL_BUSY_MS from these keys; bind the documented env
	// names explicitly instead.
	_ = v.BindEnv("interval.idle_ms", "AGENT_IDLE_INTERVAL_MS")
	_ = v.BindEnv("interval.busy_ms", "AGENT_BUSY_INTERVAL_MS")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Warning: error reading config file: %v\n", err)
		}
	}

	return &Config{v: v}
}

// Get returns a configuration value.
func (c *Config) Get(key string) interface{} {
	return c.v.Get(key)
}

// GetString returns a configuration value as string.
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt returns a configuration value as int.
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// All returns all configuration as a map.
func (c *Config) All() map[string]interface{} {
	return c.v.AllSettings()
}

// Token returns the configured bearer token (CLI_TOKEN).
func (c *Config) Token() string {
	return c.GetString("token")
}

// ServerURL returns the configured control-plane URL (SERVER_URL).
func (c *Config) ServerURL() string {
	return c.GetString("server.url")
}

// HTTPTimeout returns the per-request HTTP timeout.
func (c *Config) HTTPTimeout() time.Duration {
	return c.v.GetDuration("http.timeout")
}

// IdleInterval returns the heartbeat delay to use while idle.
func (c *Config) IdleInterval() time.Duration {
	return time.Duration(c.GetInt("interval.idle_ms")) * time.Millisecond
}

// BusyInterval returns the heartbeat delay to use while any shell is managed.
func (c *Config) BusyInterval() time.Duration {
	return time.Duration(c.GetInt("interval.busy_ms")) * time.Millisecond
}

// LogLevel returns the configured structured-logging level.
func (c *Config) LogLevel() string {
	return c.GetString("log.level")
}

// LogFormat returns the configured structured-logging format.
func (c *Config) LogFormat() string {
	return c.GetString("log.format")
}

// Viper exposes the underlying *viper.Viper.
func (c *Config) Viper() *viper.Viper {
	return c.v
}

// Path returns the config file location Load() looks for
// (~/.config/hbagent/config.yaml), regardless of whether it exists yet.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	return filepath.Join(home, ".config", "hbagent", "config.yaml"), nil
}
