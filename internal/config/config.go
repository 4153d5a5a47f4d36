// Package config loads and validates the hatd YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultListenAddr = "0.0.0.0:5000"

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Source       SourceConfig       `yaml:"source"`
	Integrations IntegrationsConfig `yaml:"integrations"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`
}

// SourceConfig points at the HAT source file loaded at startup.
type SourceConfig struct {
	Path string `yaml:"path"`
}

type IntegrationsConfig struct {
	Dummy         DummyConfig          `yaml:"dummy"`
	HomeAssistant *HomeAssistantConfig `yaml:"home_assistant"`
}

// DummyConfig controls the fake event generator used for development.
type DummyConfig struct {
	Enabled  bool `yaml:"enabled"`
	Interval int  `yaml:"interval"` // seconds between events (default 3)
}

// IntervalDuration returns the configured emit interval.
func (d DummyConfig) IntervalDuration() time.Duration {
	if d.Interval <= 0 {
		return 3 * time.Second
	}
	return time.Duration(d.Interval) * time.Second
}

type HomeAssistantConfig struct {
	URL         string `yaml:"url"`
	AccessToken string `yaml:"access_token"`
}

// ResolveCredential resolves a config value that may reference an
// environment variable with a $NAME or ${NAME} prefix.
func ResolveCredential(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", errors.New("credential value cannot be empty")
	}

	if strings.HasPrefix(trimmed, "$") {
		envName := strings.TrimPrefix(trimmed, "$")
		envName = strings.TrimPrefix(envName, "{")
		envName = strings.TrimSuffix(envName, "}")
		envName = strings.TrimSpace(envName)
		if envName == "" {
			return "", errors.New("credential env reference is invalid")
		}

		resolved := strings.TrimSpace(os.Getenv(envName))
		if resolved == "" {
			return "", fmt.Errorf("environment variable %q is not set", envName)
		}

		return resolved, nil
	}

	return trimmed, nil
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}

	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = defaultListenAddr
	}

	if cfg.Server.DBPath == "" {
		cfg.Server.DBPath = DefaultDBPath()
	}
}

func validate(cfg Config) error {
	if ha := cfg.Integrations.HomeAssistant; ha != nil {
		if strings.TrimSpace(ha.URL) == "" {
			return errors.New("home_assistant integration requires url")
		}
		if strings.TrimSpace(ha.AccessToken) == "" {
			return errors.New("home_assistant integration requires access_token")
		}
	}

	if cfg.Integrations.Dummy.Interval < 0 {
		return fmt.Errorf("dummy interval cannot be negative: %d", cfg.Integrations.Dummy.Interval)
	}

	return nil
}
