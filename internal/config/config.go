// Package config provides configuration management for schemaflow.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultDriver is the database backend used when none is configured.
	DefaultDriver = "sqlite"

	// DefaultMaxConns is the default connection pool size.
	DefaultMaxConns = 4

	// DefaultLogLevel is the default zerolog level name.
	DefaultLogLevel = "info"

	// DefaultSchemaTable is the default name of the version-store table.
	DefaultSchemaTable = "schema_versions"
)

// Setting keys, used both in settings files and as environment variables.
const (
	KeyDriver      = "SCHEMAFLOW_DRIVER"
	KeyDSN         = "SCHEMAFLOW_DSN"
	KeyMaxConns    = "SCHEMAFLOW_MAX_CONNS"
	KeyLogLevel    = "SCHEMAFLOW_LOG_LEVEL"
	KeySchemaTable = "SCHEMAFLOW_SCHEMA_TABLE"
)

// Config holds the application configuration.
type Config struct {
	// Database settings
	Driver   string `json:"driver" yaml:"driver"`
	DSN      string `json:"dsn" yaml:"dsn"`
	MaxConns int    `json:"max_conns" yaml:"max_conns"`

	LogLevel    string `json:"log_level" yaml:"log_level"`
	SchemaTable string `json:"schema_table" yaml:"schema_table"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// DataDir returns the data directory path (~/.schemaflow).
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".schemaflow")
}

// DBPath returns the default SQLite database file path.
func DBPath() string {
	return filepath.Join(DataDir(), "schemaflow.db")
}

// SettingsPath returns the JSON settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// YAMLSettingsPath returns the YAML settings file path. It is read only
// when settings.json does not exist.
func YAMLSettingsPath() string {
	return filepath.Join(DataDir(), "settings.yaml")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Driver:      DefaultDriver,
		DSN:         DBPath(),
		MaxConns:    DefaultMaxConns,
		LogLevel:    DefaultLogLevel,
		SchemaTable: DefaultSchemaTable,
	}
}

// Load loads configuration from the settings file in DataDir, merging with
// defaults, then applies environment overrides.
func Load() (*Config, error) {
	return LoadFrom(SettingsPath(), YAMLSettingsPath())
}

// LoadFrom is Load with explicit settings file paths. The first path that
// exists wins; files ending in .yaml or .yml are parsed as YAML.
func LoadFrom(paths ...string) (*Config, error) {
	cfg := Default()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}

		settings, err := parseSettings(path, data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		cfg.apply(settings)
		break
	}

	cfg.apply(envSettings())
	return cfg, nil
}

func parseSettings(path string, data []byte) (map[string]any, error) {
	// Load settings into a map so unknown keys are ignored
	var settings map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &settings); err != nil {
			return nil, err
		}
	}
	return settings, nil
}

func envSettings() map[string]any {
	settings := make(map[string]any)
	for _, key := range []string{KeyDriver, KeyDSN, KeyMaxConns, KeyLogLevel, KeySchemaTable} {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			settings[key] = v
		}
	}
	return settings
}

func (c *Config) apply(settings map[string]any) {
	if v := stringSetting(settings, KeyDriver); v != "" {
		c.Driver = strings.ToLower(v)
	}
	if v := stringSetting(settings, KeyDSN); v != "" {
		c.DSN = v
	}
	if v, ok := intSetting(settings, KeyMaxConns); ok && v > 0 {
		c.MaxConns = v
	}
	if v := stringSetting(settings, KeyLogLevel); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := stringSetting(settings, KeySchemaTable); v != "" {
		c.SchemaTable = v
	}
}

func stringSetting(settings map[string]any, key string) string {
	v, _ := settings[key].(string)
	return strings.TrimSpace(v)
}

// intSetting accepts JSON numbers, YAML ints and numeric strings from the
// environment.
func intSetting(settings map[string]any, key string) (int, bool) {
	switch v := settings[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	}
	return 0, false
}

// Get returns the global configuration, loading it on first use. A settings
// file that cannot be read is logged and replaced by the defaults. Callers
// must not modify the returned value.
func Get() *Config {
	configOnce.Do(func() {
		var err error
		globalConfig, err = Load()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load settings, using defaults")
			globalConfig = Default()
		}
	})
	return globalConfig
}
