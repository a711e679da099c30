package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileTemplate is the on-disk shape of config.yaml, written by `agent config
// init` and read back by Load() via Viper. The bearer token is deliberately
// absent: it belongs in the OS keyring, not a plaintext file.
type FileTemplate struct {
	Server struct {
		URL string `yaml:"url"`
	} `yaml:"server"`
	HTTP struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"http"`
	Interval struct {
		IdleMS int `yaml:"idle_ms"`
		BusyMS int `yaml:"busy_ms"`
	} `yaml:"interval"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// DefaultFileTemplate returns the template populated with the built-in
// defaults, the same values Load() falls back to when the file is absent.
func DefaultFileTemplate() FileTemplate {
	var t FileTemplate

	t.Server.URL = DefaultServerURL
	t.HTTP.Timeout = DefaultHTTPTimeout.String()
	t.Interval.IdleMS = DefaultIdleIntervalMS
	t.Interval.BusyMS = DefaultBusyIntervalMS
	t.Log.Level = DefaultLogLevel
	t.Log.Format = DefaultLogFormat

	return t
}

// WriteTemplate marshals t as YAML and writes it to path, creating parent
// directories as needed. It refuses to overwrite an existing file unless
// force is set.
func WriteTemplate(path string, t FileTemplate, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal config template: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	return nil
}
