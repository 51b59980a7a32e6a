package llmfactory

import (
	"os"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/reagent/pkg/llms"
	"github.com/effective-security/reagent/pkg/llms/anthropic"
	"github.com/effective-security/reagent/pkg/llms/groq"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/reagent", "llmfactory")

// NewLLM is a wrapper for CreateLLM to allow for overriding the default implementation.
var NewLLM = CreateLLM

// Factory creates and caches reasoning engine models.
type Factory interface {
	// DefaultModel returns the model of the default provider.
	DefaultModel() (llms.Model, error)
	// ModelByName returns a model by its name.
	// If no provider serves the model, the default model is returned.
	ModelByName(preferredModels ...string) (llms.Model, error)
}

// Load returns a factory configured from the given file.
func Load(location string) (Factory, error) {
	cfg, err := LoadConfig(location)
	if err != nil {
		return nil, err
	}
	return New(cfg), nil
}

type factory struct {
	cfg *Config

	defaultProvider *ProviderConfig
	byName          map[string]llms.Model
	lock            sync.Mutex
}

// New creates a new factory.
func New(cfg *Config) Factory {
	f := &factory{
		cfg:    cfg,
		byName: make(map[string]llms.Model),
	}

	if cfg.DefaultProvider != "" {
		for _, provider := range cfg.Providers {
			if provider.Name == cfg.DefaultProvider {
				f.defaultProvider = provider
				break
			}
		}
	}
	if f.defaultProvider == nil && len(cfg.Providers) > 0 {
		f.defaultProvider = cfg.Providers[0]
	}

	return f
}

// CreateLLM creates a model for the provider, choosing the first preferred
// model the provider serves.
func CreateLLM(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	switch cfg.Provider {
	case ProviderGroq:
		return newGroq(cfg, preferredModels...)
	case ProviderAnthropic:
		return newAnthropic(cfg, preferredModels...)
	}
	return nil, errors.Errorf("unsupported provider: %s", cfg.Provider)
}

func newGroq(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	opts := []groq.Option{
		groq.WithModel(cfg.FindModel(preferredModels...)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, groq.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKeyEnv != "" {
		opts = append(opts, groq.WithToken(os.Getenv(cfg.APIKeyEnv)))
	}
	return groq.New(opts...)
}

func newAnthropic(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	opts := []anthropic.Option{
		anthropic.WithModel(cfg.FindModel(preferredModels...)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKeyEnv != "" {
		opts = append(opts, anthropic.WithToken(os.Getenv(cfg.APIKeyEnv)))
	}
	return anthropic.New(opts...)
}

// DefaultModel returns the model of the default provider.
func (f *factory) DefaultModel() (llms.Model, error) {
	if f.defaultProvider == nil {
		return nil, errors.New("no providers configured")
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	return f.modelByNameLocked(f.defaultProvider, f.defaultProvider.DefaultModel)
}

// ModelByName returns a model by its name,
// falling back to the default model when none of the names is served.
func (f *factory) ModelByName(modelNames ...string) (llms.Model, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	for _, modelName := range modelNames {
		if client, ok := f.byName[modelName]; ok {
			return client, nil
		}

		for _, cfg := range f.cfg.Providers {
			if slices.Contains(cfg.Models, modelName) {
				return f.modelByNameLocked(cfg, modelName)
			}
		}
	}

	if f.defaultProvider == nil {
		return nil, errors.New("no providers configured")
	}
	return f.modelByNameLocked(f.defaultProvider, f.defaultProvider.DefaultModel)
}

func (f *factory) modelByNameLocked(cfg *ProviderConfig, modelName string) (llms.Model, error) {
	if client, ok := f.byName[modelName]; ok {
		return client, nil
	}

	model, err := NewLLM(cfg, modelName)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create model %s", modelName)
	}

	logger.KV(xlog.DEBUG,
		"status", "created_llm",
		"provider", cfg.Provider,
		"model", modelName,
		"name", cfg.Name)

	f.byName[modelName] = model
	return model, nil
}
