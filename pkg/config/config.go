package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pario-ai/replay/pkg/models"
)

// Backend types.
const (
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
)

// Config holds all replay configuration.
type Config struct {
	CacheFile string                `yaml:"cache_file"`
	DBPath    string                `yaml:"db_path"`
	LogLevel  string                `yaml:"log_level"`
	Backend   BackendConfig         `yaml:"backend"`
	Pricing   []models.ModelPricing `yaml:"pricing"`
}

// BackendConfig defines the chat backend used on cache misses.
// Type is "openai" (default) or "anthropic".
type BackendConfig struct {
	Type        string        `yaml:"type"`
	URL         string        `yaml:"url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature *float64      `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	MaxRetries  int           `yaml:"max_retries"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		CacheFile: "ai_cache.json",
		LogLevel:  "info",
		Backend: BackendConfig{
			Type:        BackendOpenAI,
			URL:         "https://api.openai.com",
			Model:       "gpt-4-1106-preview",
			Temperature: Float(0.1),
			MaxTokens:   4096,
			MaxRetries:  3,
			Timeout:     2 * time.Minute,
		},
		Pricing: []models.ModelPricing{
			{Model: "gpt-4-1106-preview", PromptCost: 0.01, CompletionCost: 0.03},
			{Model: "gpt-4o", PromptCost: 0.0025, CompletionCost: 0.01},
			{Model: "gpt-4", PromptCost: 0.03, CompletionCost: 0.06},
			{Model: "claude-3-7-sonnet-latest", PromptCost: 0.003, CompletionCost: 0.015},
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load but returns Default when path does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

// Float returns a pointer to v, for optional numeric settings.
func Float(v float64) *float64 {
	return &v
}

// PricingFor returns the pricing entry for model. Unknown models cost nothing.
func (c *Config) PricingFor(model string) models.ModelPricing {
	for _, p := range c.Pricing {
		if p.Model == model {
			return p
		}
	}
	return models.ModelPricing{Model: model}
}
