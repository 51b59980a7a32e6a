package registry

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/configloader"
	"github.com/go-playground/validator/v10"
)

// TransportStreamableHTTP is the only transport kind currently supported.
const TransportStreamableHTTP = "streamable_http"

// Default timeouts in seconds.
const (
	DefaultDialTimeout = 10
	DefaultCallTimeout = 30
)

// ServerConfig describes one MCP server endpoint.
type ServerConfig struct {
	// Transport specifies the transport kind, only streamable_http is supported.
	Transport string `json:"transport,omitempty" yaml:"transport,omitempty" validate:"omitempty,oneof=streamable_http"`
	// URL is the endpoint to POST MCP messages to.
	URL string `json:"url" yaml:"url" validate:"required,url"`
	// Headers are sent with every request, for example authorization.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	// DialTimeout bounds connection and handshake, in seconds.
	DialTimeout int `json:"dial_timeout,omitempty" yaml:"dial_timeout,omitempty" validate:"omitempty,min=1"`
	// CallTimeout bounds a single tool call, in seconds.
	CallTimeout int `json:"call_timeout,omitempty" yaml:"call_timeout,omitempty" validate:"omitempty,min=1"`
}

// Config describes the set of MCP servers the registry connects to.
type Config struct {
	// Servers maps a server name to its endpoint configuration.
	Servers map[string]*ServerConfig `json:"servers" yaml:"servers" validate:"required,min=1,dive,required"`
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err != nil {
		return errors.WithMessage(err, "invalid registry configuration")
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
