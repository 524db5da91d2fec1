package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	udiderrors "getudid/internal/errors"
	"getudid/internal/paths"
)

// Config represents the complete getudid configuration
type Config struct {
	Version int `json:"version" mapstructure:"version" toml:"version" yaml:"version"`

	Server  ServerConfig  `json:"server" mapstructure:"server" toml:"server" yaml:"server"`
	Profile ProfileConfig `json:"profile" mapstructure:"profile" toml:"profile" yaml:"profile"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging" toml:"logging" yaml:"logging"`
}

// ServerConfig contains listener configuration
type ServerConfig struct {
	Bind            string `json:"bind" mapstructure:"bind" toml:"bind" yaml:"bind"`
	Port            int    `json:"port" mapstructure:"port" toml:"port" yaml:"port"`
	MaxRequestBytes int    `json:"maxRequestBytes" mapstructure:"maxRequestBytes" toml:"maxRequestBytes" yaml:"maxRequestBytes"`
	ProbeTimeoutMs  int    `json:"probeTimeoutMs" mapstructure:"probeTimeoutMs" toml:"probeTimeoutMs" yaml:"probeTimeoutMs"`
}

// ProfileConfig locates the configuration profile served on /install-profile
type ProfileConfig struct {
	Path     string `json:"path" mapstructure:"path" toml:"path" yaml:"path"`
	FileName string `json:"fileName" mapstructure:"fileName" toml:"fileName" yaml:"fileName"`
}

// LoggingConfig contains operator logging configuration
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level" toml:"level" yaml:"level"`
	ToFile     bool   `json:"toFile" mapstructure:"toFile" toml:"toFile" yaml:"toFile"`
	File       string `json:"file,omitempty" mapstructure:"file" toml:"file,omitempty" yaml:"file,omitempty"`
	MaxSize    string `json:"maxSize,omitempty" mapstructure:"maxSize" toml:"maxSize,omitempty" yaml:"maxSize,omitempty"`
	MaxBackups int    `json:"maxBackups,omitempty" mapstructure:"maxBackups" toml:"maxBackups,omitempty" yaml:"maxBackups,omitempty"`
	Compress   bool   `json:"compress,omitempty" mapstructure:"compress" toml:"compress,omitempty" yaml:"compress,omitempty"`
}

// CurrentVersion is the config schema version written by this build.
const CurrentVersion = 1

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Server: ServerConfig{
			Bind:            "127.0.0.1",
			Port:            2511,
			MaxRequestBytes: 64 * 1024,
			ProbeTimeoutMs:  2000,
		},
		Profile: ProfileConfig{
			Path:     "GetUDID.mobileconfig",
			FileName: "GetUDID.mobileconfig",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from <dir>/.getudid/config.json.
// A missing file yields the defaults; keys present in the file override them.
func LoadConfig(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(dir, paths.ConfigSubdir))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, udiderrors.New(udiderrors.ConfigInvalid, "read config", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, udiderrors.New(udiderrors.ConfigInvalid, "decode config", err)
	}
	return cfg, nil
}

// LoadFile loads configuration from an explicit file, choosing the decoder by extension.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		v := viper.New()
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, udiderrors.New(udiderrors.ConfigInvalid, "read config", err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, udiderrors.New(udiderrors.ConfigInvalid, "decode config", err)
		}
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, udiderrors.New(udiderrors.ConfigInvalid, "decode toml config", err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, udiderrors.New(udiderrors.ConfigInvalid, "read config", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, udiderrors.New(udiderrors.ConfigInvalid, "decode yaml config", err)
		}
	default:
		return nil, udiderrors.New(udiderrors.ConfigInvalid, fmt.Sprintf("unsupported config format %q", ext), nil)
	}

	return cfg, nil
}

// Save writes the configuration to <dir>/.getudid/config.json
func (c *Config) Save(dir string) error {
	configPath := paths.GetConfigPath(dir)
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0644)
}

// EncodeYAML renders the configuration as a YAML document.
func (c *Config) EncodeYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch {
	case c.Version != CurrentVersion:
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	case strings.TrimSpace(c.Server.Bind) == "":
		return &ConfigError{Field: "server.bind", Message: "must not be empty"}
	case c.Server.Port < 0 || c.Server.Port > 65535:
		return &ConfigError{Field: "server.port", Message: "must be between 0 and 65535"}
	case c.Server.MaxRequestBytes <= 0:
		return &ConfigError{Field: "server.maxRequestBytes", Message: "must be positive"}
	case c.Server.ProbeTimeoutMs <= 0:
		return &ConfigError{Field: "server.probeTimeoutMs", Message: "must be positive"}
	case strings.TrimSpace(c.Profile.Path) == "":
		return &ConfigError{Field: "profile.path", Message: "must not be empty"}
	case strings.TrimSpace(c.Profile.FileName) == "":
		return &ConfigError{Field: "profile.fileName", Message: "must not be empty"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
