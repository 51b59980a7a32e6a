package llmfactory

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/configloader"
	"github.com/go-playground/validator/v10"
)

// Supported provider kinds.
const (
	ProviderGroq      = "GROQ"
	ProviderAnthropic = "ANTHROPIC"
)

// Config describes the set of reasoning engine providers.
type Config struct {
	// Providers specifies the list of providers to use.
	Providers []*ProviderConfig `json:"providers" yaml:"providers" validate:"required,min=1,dive,required"`
	// DefaultProvider names the provider used when no model is requested.
	// When empty, the first provider is the default.
	DefaultProvider string `json:"default_provider,omitempty" yaml:"default_provider,omitempty"`
}

// ProviderConfig describes one reasoning engine provider.
type ProviderConfig struct {
	// Name identifies the provider in the config.
	Name string `json:"name" yaml:"name" validate:"required"`
	// Provider specifies the provider kind: GROQ or ANTHROPIC.
	Provider string `json:"provider" yaml:"provider" validate:"required,oneof=GROQ ANTHROPIC"`
	// BaseURL overrides the provider endpoint, for example a proxy.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" validate:"omitempty,url"`
	// APIKeyEnv names the environment variable holding the API key.
	// When empty, the provider's own default variable is used.
	APIKeyEnv string `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	// DefaultModel is used when no preferred model matches.
	DefaultModel string `json:"default_model" yaml:"default_model" validate:"required"`
	// Models lists the models this provider serves.
	Models []string `json:"models,omitempty" yaml:"models,omitempty"`
}

// FindModel returns the first preferred model served by this provider,
// or the provider's default model.
func (c *ProviderConfig) FindModel(models ...string) string {
	for _, model := range models {
		if slices.Contains(c.Models, model) {
			return model
		}
	}
	return c.DefaultModel
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err != nil {
		return errors.WithMessage(err, "invalid provider configuration")
	}
	return nil
}

// LoadConfig loads and validates the configuration from a JSON or YAML
// file, expanding environment variables.
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
