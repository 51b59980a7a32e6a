// Package websearch provides a web search tool backed by the Tavily API.
package websearch

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	tavilygo "github.com/diverged/tavily-go"
	tavilyModels "github.com/diverged/tavily-go/models"
	"github.com/effective-security/reagent/pkg/schema"
	"github.com/effective-security/reagent/tools"
)

const (
	ToolName = "tavily_web_search"

	// NoResultsAnswer is returned when the search yields nothing usable.
	NoResultsAnswer = "No relevant information found."

	maxResults = 3
)

// SearchRequest represents the tool input.
type SearchRequest struct {
	Query string `json:"query" yaml:"query" jsonschema:"title=query,description=The query to search the web."`
}

// SearchResult represents the tool output.
type SearchResult struct {
	Content string `json:"content" yaml:"content" jsonschema:"title=content,description=The search answer or the top results."`
}

// Tool searches the web via Tavily and renders the answer or the top results.
type Tool struct {
	name        string
	description string
	funcParams  any

	baseURL    string
	httpClient *http.Client
}

var _ tools.Tool[SearchRequest, SearchResult] = (*Tool)(nil)

func New() (*Tool, error) {
	if os.Getenv("TAVILY_API_KEY") == "" {
		return nil, errors.New("TAVILY_API_KEY is not set")
	}

	sc, err := schema.New(reflect.TypeOf(SearchRequest{}))
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create schema")
	}
	return &Tool{
		name:        ToolName,
		description: "Search the web for current information matching the query.",
		funcParams:  sc.Parameters,
		httpClient:  http.DefaultClient,
	}, nil
}

func (t *Tool) WithBaseURL(baseURL string) *Tool {
	t.baseURL = baseURL
	return t
}

func (t *Tool) WithHTTPClient(client *http.Client) *Tool {
	t.httpClient = client
	return t
}

func (t *Tool) Name() string        { return t.name }
func (t *Tool) Description() string { return t.description }
func (t *Tool) Parameters() any     { return t.funcParams }

func (t *Tool) Run(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req.Query == "" {
		return nil, errors.New("invalid request: empty query")
	}

	apikey := os.Getenv("TAVILY_API_KEY")
	if apikey == "" {
		return nil, errors.New("TAVILY_API_KEY is not set")
	}

	client := tavilygo.NewClient(apikey)
	if t.baseURL != "" {
		client.BaseURL = t.baseURL
	}
	if t.httpClient != nil {
		client.HTTPClient = t.httpClient
	}

	searchReq := tavilyModels.SearchRequest{
		Query:         req.Query,
		SearchDepth:   "basic",
		IncludeAnswer: true,
		MaxResults:    maxResults,
	}

	searchResp, err := tavilygo.Search(client, searchReq)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to perform search")
	}

	if searchResp.Answer != "" {
		return &SearchResult{Content: searchResp.Answer}, nil
	}

	count := min(len(searchResp.Results), maxResults)
	if count == 0 {
		return &SearchResult{Content: NoResultsAnswer}, nil
	}

	rendered := make([]string, 0, count)
	for i, res := range searchResp.Results[:count] {
		rendered = append(rendered, fmt.Sprintf("%d. %s - %s\n%s",
			i+1, res.Title, res.URL, res.Content))
	}
	return &SearchResult{Content: strings.Join(rendered, "\n\n")}, nil
}

func (t *Tool) Call(ctx context.Context, input string) (string, error) {
	var req SearchRequest
	if err := tools.DecodeInput(input, &req); err != nil {
		return "", err
	}
	out, err := t.Run(ctx, &req)
	if err != nil {
		return "", tools.NewExecutionError(t.name, err)
	}
	return out.Content, nil
}
