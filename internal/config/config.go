// Package config loads the quadstore configuration from an optional YAML
// file, then applies QUADSTORE_* environment overrides.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const envPrefix = "QUADSTORE_"

type Config struct {
	Name            string        `yaml:"name"`
	DefaultGraphURI string        `yaml:"default_graph_uri"`
	Storage         StorageConfig `yaml:"storage"`
	Log             LogConfig     `yaml:"log"`
	Metrics         MetricsConfig `yaml:"metrics"`
}

type StorageConfig struct {
	Backend  string `yaml:"backend"` // badger or bolt
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Name: "quadstore",
		Storage: StorageConfig{
			Backend: "badger",
			Path:    "quadstore-data",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Namespace: "quadstore",
		},
	}
}

// Load reads path (if not empty) over the defaults and applies environment
// overrides. The result is not validated: callers apply their own overrides
// and then call Validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Name, "NAME")
	setString(&c.DefaultGraphURI, "DEFAULT_GRAPH")
	setString(&c.Storage.Backend, "BACKEND")
	setString(&c.Storage.Path, "PATH")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	setString(&c.Metrics.Namespace, "METRICS_NAMESPACE")

	if err := setBool(&c.Storage.InMemory, "IN_MEMORY"); err != nil {
		return err
	}
	return setBool(&c.Metrics.Enabled, "METRICS")
}

// Validate checks the values a command cannot run without
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name must not be empty")
	}
	switch c.Storage.Backend {
	case "badger":
	case "bolt":
		if c.Storage.InMemory {
			return fmt.Errorf("the bolt backend has no in-memory mode")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return fmt.Errorf("storage path must be set")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// NewLogger builds the logger described by the log section
func (c LogConfig) NewLogger(out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(level)
	if c.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
	}
	*dst = b
	return nil
}
