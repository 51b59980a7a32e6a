package groq

import (
	"net/http"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/openai/openai-go/v3/option"
)

const (
	tokenEnvVarName = "GROQ_API_KEY"
	modelEnvVarName = "GROQ_MODEL"

	// DefaultBaseURL is the Groq OpenAI compatible endpoint.
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	// DefaultModel is used when no model is configured.
	DefaultModel = "llama-3.1-8b-instant"
)

// ErrMissingToken is returned when the API token is not set.
var ErrMissingToken = errors.Newf("missing the Groq API key, set it in the %s environment variable", tokenEnvVarName)

type options struct {
	token      string
	model      string
	baseURL    string
	httpClient *http.Client
}

// Option is a functional option for the Groq client.
type Option func(*options)

// WithToken passes the Groq API token to the client. If not set, the token
// is read from the GROQ_API_KEY environment variable.
func WithToken(token string) Option {
	return func(opts *options) {
		opts.token = token
	}
}

// WithModel passes the Groq model to the client. If not set, the model
// is read from the GROQ_MODEL environment variable.
func WithModel(model string) Option {
	return func(opts *options) {
		opts.model = model
	}
}

// WithBaseURL passes the Groq base URL to the client.
func WithBaseURL(baseURL string) Option {
	return func(opts *options) {
		opts.baseURL = baseURL
	}
}

// WithHTTPClient allows setting a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(opts *options) {
		opts.httpClient = client
	}
}

func newClientOptions(opts ...Option) (*options, []option.RequestOption, error) {
	o := &options{
		token:   os.Getenv(tokenEnvVarName),
		model:   values.StringsCoalesce(os.Getenv(modelEnvVarName), DefaultModel),
		baseURL: DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.token == "" {
		return nil, nil, errors.WithStack(ErrMissingToken)
	}

	ropts := []option.RequestOption{
		option.WithAPIKey(o.token),
		option.WithBaseURL(o.baseURL),
	}
	if o.httpClient != nil {
		ropts = append(ropts, option.WithHTTPClient(o.httpClient))
	}
	return o, ropts, nil
}
