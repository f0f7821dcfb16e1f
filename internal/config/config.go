// Package config loads wsterm settings from defaults, a config file,
// WSTERM_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Dial   DialConfig  `mapstructure:"dial"`
	Close  CloseConfig `mapstructure:"close"`
	Log    LogConfig   `mapstructure:"log"`
	Prompt string      `mapstructure:"prompt"`
}

type DialConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	// Headers are "Name: value" pairs added to the opening handshake.
	Headers      []string `mapstructure:"headers"`
	Subprotocols []string `mapstructure:"subprotocols"`
}

type CloseConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// New returns a viper instance with defaults and environment bindings.
// Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/wsterm")
	v.AddConfigPath("/etc/wsterm/")

	// WSTERM_DIAL_TIMEOUT, WSTERM_LOG_FILE, ...
	v.SetEnvPrefix("WSTERM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("dial.timeout", 10*time.Second)
	v.SetDefault("dial.headers", []string{})
	v.SetDefault("dial.subprotocols", []string{})
	v.SetDefault("close.timeout", 10*time.Second)
	v.SetDefault("log.file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("prompt", "> ")

	return v
}

// Load reads the config file, if any, and decodes the merged settings.
// A non-empty path must exist; otherwise a missing file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if _, err := cfg.Dial.Header(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Header parses Headers into an http.Header.
func (d DialConfig) Header() (http.Header, error) {
	h := make(http.Header)
	for _, kv := range d.Headers {
		name, value, ok := strings.Cut(kv, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q: expected \"Name: value\"", kv)
		}
		h.Add(name, strings.TrimSpace(value))
	}
	return h, nil
}
