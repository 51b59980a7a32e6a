package agent

import (
	"github.com/effective-security/reagent/pkg/llms"
	"github.com/effective-security/reagent/store"
)

const (
	// DefaultMaxToolIterations bounds the number of reasoning/tool cycles
	// in a single run.
	DefaultMaxToolIterations = 10
	// DefaultMaxMessages bounds the number of messages sent to the model.
	DefaultMaxMessages = 100
	// DefaultMaxContentSize bounds the total content size sent to the model.
	DefaultMaxContentSize = 256 * 1024
	// DefaultMaxRetries bounds retries on empty model responses.
	DefaultMaxRetries = 3
)

// Option is a function that can be used to modify the behavior of the Agent Config.
type Option func(*Config)

type Config struct {
	// Model is the model to use in an LLM call.
	Model    string
	modelSet bool

	// MaxTokens is the maximum number of tokens to generate to use in an LLM call.
	MaxTokens    int
	maxTokensSet bool

	// Temperature is the temperature for sampling to use in an LLM call, between 0 and 1.
	Temperature    float64
	temperatureSet bool

	// TopP is the cumulative probability for top-p sampling in an LLM call.
	TopP    float64
	toppSet bool

	// Seed is a seed for deterministic sampling in an LLM call.
	Seed    int
	seedSet bool

	// StopWords is a list of words to stop on to use in an LLM call.
	StopWords    []string
	stopWordsSet bool

	// ToolChoice is the choice of tool to use, it can either be "none", "auto" (the default behavior), or a specific tool as described in the ToolChoice type.
	ToolChoice    any
	toolChoiceSet bool

	//
	// Below are the options for the Agent, not related to LLM call
	//

	// MaxToolIterations is the maximum number of reasoning/tool cycles per run,
	// DefaultMaxToolIterations when not set.
	MaxToolIterations int

	// MaxMessages is the maximum number of messages sent to the model.
	MaxMessages int

	// MaxContentSize is the maximum total content size sent to the model.
	MaxContentSize int

	// CallbackHandler receives run, step and tool events.
	CallbackHandler Callback

	// Store keeps prior conversation history across runs of the same chat.
	Store store.MessageStore

	// PromptInput provides values for the system prompt template.
	PromptInput map[string]any
}

func NewConfig(opts ...Option) *Config {
	cfg := &Config{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Apply returns a copy of the config with the provided options applied.
func (c *Config) Apply(opts ...Option) *Config {
	cfg := *c
	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithModel is an option for LLM.Call.
func WithModel(model string) Option {
	return func(o *Config) {
		o.Model = model
		o.modelSet = true
	}
}

// WithMaxTokens is an option for LLM.Call.
func WithMaxTokens(maxTokens int) Option {
	return func(o *Config) {
		o.MaxTokens = maxTokens
		o.maxTokensSet = true
	}
}

// WithTemperature is an option for LLM.Call.
func WithTemperature(temperature float64) Option {
	return func(o *Config) {
		o.Temperature = temperature
		o.temperatureSet = true
	}
}

// WithTopP will add an option to use top-p sampling for LLM.Call.
func WithTopP(topP float64) Option {
	return func(o *Config) {
		o.TopP = topP
		o.toppSet = true
	}
}

// WithSeed will add an option to use deterministic sampling for LLM.Call.
func WithSeed(seed int) Option {
	return func(o *Config) {
		o.Seed = seed
		o.seedSet = true
	}
}

// WithStopWords is an option for setting the stop words for LLM.Call.
func WithStopWords(stopWords []string) Option {
	return func(o *Config) {
		o.StopWords = stopWords
		o.stopWordsSet = true
	}
}

// WithToolChoice is an option for LLM.Call.
func WithToolChoice(choice any) Option {
	return func(o *Config) {
		o.ToolChoice = choice
		o.toolChoiceSet = true
	}
}

// WithMaxToolIterations bounds the number of reasoning/tool cycles per run.
func WithMaxToolIterations(n int) Option {
	return func(o *Config) {
		o.MaxToolIterations = n
	}
}

// WithMaxMessages bounds the number of messages sent to the model.
func WithMaxMessages(n int) Option {
	return func(o *Config) {
		o.MaxMessages = n
	}
}

// WithMaxContentSize bounds the total content size sent to the model.
func WithMaxContentSize(n int) Option {
	return func(o *Config) {
		o.MaxContentSize = n
	}
}

// WithCallback allows setting a custom Callback Handler.
func WithCallback(callbackHandler Callback) Option {
	return func(o *Config) {
		o.CallbackHandler = callbackHandler
	}
}

// WithStore keeps prior conversation history across runs of the same chat.
func WithStore(s store.MessageStore) Option {
	return func(o *Config) {
		o.Store = s
	}
}

// WithPromptInput is an option that allows the user to specify the system prompt input.
func WithPromptInput(input map[string]any) Option {
	return func(o *Config) {
		o.PromptInput = input
	}
}

// GetCallOptions converts the config to per-call model options.
func (c *Config) GetCallOptions(toolDefs []llms.Tool) []llms.CallOption {
	var callOptions []llms.CallOption
	if c.modelSet {
		callOptions = append(callOptions, llms.WithModel(c.Model))
	}
	if c.maxTokensSet {
		callOptions = append(callOptions, llms.WithMaxTokens(c.MaxTokens))
	}
	if c.temperatureSet {
		callOptions = append(callOptions, llms.WithTemperature(c.Temperature))
	}
	if c.toppSet {
		callOptions = append(callOptions, llms.WithTopP(c.TopP))
	}
	if c.seedSet {
		callOptions = append(callOptions, llms.WithSeed(c.Seed))
	}
	if c.stopWordsSet {
		callOptions = append(callOptions, llms.WithStopWords(c.StopWords))
	}
	if c.toolChoiceSet {
		callOptions = append(callOptions, llms.WithToolChoice(c.ToolChoice))
	}
	if len(toolDefs) > 0 {
		callOptions = append(callOptions, llms.WithTools(toolDefs))
	}
	return callOptions
}
