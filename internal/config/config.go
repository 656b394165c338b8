// Package config loads hdql settings from a YAML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given. A missing file at
// this path is not an error.
const DefaultPath = ".hdql/config.yaml"

// Embedder names.
const (
	EmbedderHash   = "hash"
	EmbedderOllama = "ollama"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	DB             string   `yaml:"db"`
	OllamaURL      string   `yaml:"ollama_url"`
	EmbedModel     string   `yaml:"embed_model"`
	Embedder       string   `yaml:"embedder"`
	Dimension      int      `yaml:"dimension"`
	TopK           int      `yaml:"top_k"`
	ParseCacheSize int      `yaml:"parse_cache_size"`
	LogLevel       string   `yaml:"log_level"`
	EntityTypes    []string `yaml:"entity_types"`
	MetricsAddr    string   `yaml:"metrics_addr"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		DB:             ".hdql/hdql.db",
		OllamaURL:      "http://localhost:11434",
		EmbedModel:     "nomic-embed-text",
		Embedder:       EmbedderHash,
		Dimension:      1000,
		TopK:           10,
		ParseCacheSize: 256,
		LogLevel:       "info",
	}
}

// Load reads path over the defaults. ${VAR} and ${VAR:-default} references
// are expanded from the environment before the YAML is decoded.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && path == DefaultPath {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal([]byte(ExpandEnvWithDefaults(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ExpandEnvWithDefaults replaces ${VAR} and ${VAR:-default}. Unset
// variables without a default expand to "".
func ExpandEnvWithDefaults(s string) string {
	return os.Expand(s, func(ref string) string {
		name, def, hasDefault := strings.Cut(ref, ":-")
		if v, ok := os.LookupEnv(name); ok && (v != "" || !hasDefault) {
			return v
		}
		return def
	})
}

func (c *Config) Validate() error {
	var errs []error
	if c.DB == "" {
		errs = append(errs, errors.New("db must be set"))
	}
	switch c.Embedder {
	case EmbedderHash:
		if c.Dimension <= 0 {
			errs = append(errs, fmt.Errorf("dimension must be positive, got %d", c.Dimension))
		}
	case EmbedderOllama:
		if c.OllamaURL == "" || c.EmbedModel == "" {
			errs = append(errs, errors.New("ollama embedder needs ollama_url and embed_model"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown embedder %q (want %s or %s)", c.Embedder, EmbedderHash, EmbedderOllama))
	}
	if c.TopK <= 0 {
		errs = append(errs, fmt.Errorf("top_k must be positive, got %d", c.TopK))
	}
	if c.ParseCacheSize < 0 {
		errs = append(errs, fmt.Errorf("parse_cache_size must not be negative, got %d", c.ParseCacheSize))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	for _, t := range c.EntityTypes {
		if t == "" || strings.ContainsAny(t, " \t()\"'") {
			errs = append(errs, fmt.Errorf("bad entity type %q", t))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}
