// Package wikipedia provides a tool that searches Wikipedia pages.
package wikipedia

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/reagent/pkg/schema"
	"github.com/effective-security/reagent/tools"
	"github.com/effective-security/x/slices"
)

const (
	ToolName = "wikipedia_search"

	// DefaultBaseURL is the MediaWiki action API endpoint.
	DefaultBaseURL = "https://en.wikipedia.org/w/api.php"

	// NoResultsAnswer is returned when the query matches nothing.
	NoResultsAnswer = "No good Wikipedia Search Result was found"

	maxResults   = 2
	maxEntrysize = 1500
)

// SearchRequest represents the tool input.
type SearchRequest struct {
	Query string `json:"query" yaml:"query" jsonschema:"title=query,description=The query to search Wikipedia pages."`
}

// SearchResult represents the tool output.
type SearchResult struct {
	Content string `json:"content" yaml:"content" jsonschema:"title=content,description=The summaries of the found pages."`
}

// Tool searches Wikipedia and renders the top page extracts as text.
type Tool struct {
	name        string
	description string
	funcParams  any

	baseURL    string
	httpClient *http.Client
}

var _ tools.Tool[SearchRequest, SearchResult] = (*Tool)(nil)

func New() (*Tool, error) {
	sc, err := schema.New(reflect.TypeOf(SearchRequest{}))
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create schema")
	}
	return &Tool{
		name:        ToolName,
		description: "Search Wikipedia for pages matching the query and return their summaries.",
		funcParams:  sc.Parameters,
		baseURL:     DefaultBaseURL,
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

// queryResponse is the subset of the action API response the tool consumes.
// generator=search with prop=extracts returns pages keyed by page id, with
// the search rank in the index field.
type queryResponse struct {
	Query struct {
		Pages map[string]page `json:"pages"`
	} `json:"query"`
}

type page struct {
	Index   int    `json:"index"`
	Title   string `json:"title"`
	Extract string `json:"extract"`
}

func (t *Tool) Run(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req.Query == "" {
		return nil, errors.New("invalid request: empty query")
	}

	vals := url.Values{}
	vals.Set("action", "query")
	vals.Set("format", "json")
	vals.Set("generator", "search")
	vals.Set("gsrsearch", req.Query)
	vals.Set("gsrlimit", fmt.Sprintf("%d", maxResults))
	vals.Set("prop", "extracts")
	vals.Set("explaintext", "1")
	vals.Set("exintro", "1")

	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"?"+vals.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	resp, err := t.httpClient.Do(hreq)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query Wikipedia")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("Wikipedia query failed: %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}

	var qr queryResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return nil, errors.Wrap(err, "failed to parse response")
	}

	if len(qr.Query.Pages) == 0 {
		return &SearchResult{Content: NoResultsAnswer}, nil
	}

	ordered := make([]page, 0, len(qr.Query.Pages))
	for _, p := range qr.Query.Pages {
		ordered = append(ordered, p)
	}
	// keep the search rank order
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Index < ordered[j].Index
	})

	rendered := make([]string, 0, len(ordered))
	for _, p := range ordered {
		text := fmt.Sprintf("Page: %s\nSummary: %s",
			strings.TrimSpace(p.Title),
			strings.TrimSpace(p.Extract),
		)
		rendered = append(rendered, slices.StringUpto(text, maxEntrysize))
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
