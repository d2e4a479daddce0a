// Package config loads process-wide configuration for the fable RAG
// gateway. Values come from an optional fablerag.yaml file, overridden
// by FABLERAG_* environment variables, loaded once at startup and
// immutable afterwards.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the full gateway configuration.
type Config struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// Providers is the enumerated list of enabled generation backends.
	// Known names: ollama, claude_code, gemini_cli, codex.
	Providers       []string `mapstructure:"providers"`
	DefaultProvider string   `mapstructure:"default_provider"`

	// OllamaModels restricts which Ollama models a request may select.
	// Empty means the first model reported by the daemon is used.
	OllamaModels []string `mapstructure:"ollama_models"`
	OllamaURL    string   `mapstructure:"ollama_url"`

	// GenerateTimeout bounds a single backend generation call.
	GenerateTimeout time.Duration `mapstructure:"generate_timeout"`

	// Vector store settings.
	WeaviateHost   string `mapstructure:"weaviate_host"`
	WeaviateScheme string `mapstructure:"weaviate_scheme"`
	Collection     string `mapstructure:"collection"`

	// EmbedModel is the Ollama model used for query vectorization.
	EmbedModel string `mapstructure:"embed_model"`

	// Tracing settings.
	TraceEnabled  bool   `mapstructure:"trace_enabled"`
	TraceEndpoint string `mapstructure:"trace_endpoint"`
	TraceProject  string `mapstructure:"trace_project"`
}

// Load reads configuration from the given file path (optional) and the
// environment. With an empty path it searches the working directory for
// fablerag.yaml and falls back to defaults if none exists.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8000)
	v.SetDefault("providers", []string{"ollama"})
	v.SetDefault("default_provider", "")
	v.SetDefault("ollama_models", []string{})
	v.SetDefault("ollama_url", "http://localhost:11434")
	v.SetDefault("generate_timeout", 60*time.Second)
	v.SetDefault("weaviate_host", "localhost:8080")
	v.SetDefault("weaviate_scheme", "http")
	v.SetDefault("collection", "Fable")
	v.SetDefault("embed_model", "nomic-embed-text")
	v.SetDefault("trace_enabled", false)
	v.SetDefault("trace_endpoint", "localhost:6006")
	v.SetDefault("trace_project", "fablerag")

	v.SetEnvPrefix("FABLERAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("fablerag")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
			// No config file is fine, defaults + env apply.
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.DefaultProvider == "" && len(cfg.Providers) > 0 {
		cfg.DefaultProvider = cfg.Providers[0]
	}

	return &cfg, cfg.validate()
}

func (c *Config) validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}
	if !c.HasProvider(c.DefaultProvider) {
		return fmt.Errorf("default provider %q not in providers list %v", c.DefaultProvider, c.Providers)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// HasProvider reports whether name is in the configured provider list.
func (c *Config) HasProvider(name string) bool {
	for _, p := range c.Providers {
		if p == name {
			return true
		}
	}
	return false
}

// HasOllamaModel reports whether name is in the allowed Ollama model
// list. An empty list allows any model the daemon reports.
func (c *Config) HasOllamaModel(name string) bool {
	if len(c.OllamaModels) == 0 {
		return true
	}
	for _, m := range c.OllamaModels {
		if m == name {
			return true
		}
	}
	return false
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
