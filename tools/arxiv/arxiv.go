// Package arxiv provides a tool that searches arXiv publications.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/reagent/pkg/schema"
	"github.com/effective-security/reagent/tools"
	"github.com/effective-security/x/slices"
)

const (
	ToolName = "arxiv_search"

	// DefaultBaseURL is the arXiv Atom query endpoint.
	DefaultBaseURL = "https://export.arxiv.org/api/query"

	// NoResultsAnswer is returned when the query matches nothing.
	NoResultsAnswer = "No good Arxiv Result was found"

	maxResults   = 2
	maxEntrysize = 1500
)

// SearchRequest represents the tool input.
type SearchRequest struct {
	Query string `json:"query" yaml:"query" jsonschema:"title=query,description=The query to search arXiv publications."`
}

// SearchResult represents the tool output.
type SearchResult struct {
	Content string `json:"content" yaml:"content" jsonschema:"title=content,description=The summaries of the found publications."`
}

// Tool searches arXiv and renders the top publications as text.
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
		description: "Search arXiv for scientific publications matching the query and return their summaries.",
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

// feed is the subset of the arXiv Atom response the tool consumes.
type feed struct {
	XMLName xml.Name `xml:"feed"`
	Entries []entry  `xml:"entry"`
}

type entry struct {
	Title     string   `xml:"title"`
	Summary   string   `xml:"summary"`
	Published string   `xml:"published"`
	Authors   []author `xml:"author"`
}

type author struct {
	Name string `xml:"name"`
}

func (t *Tool) Run(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req.Query == "" {
		return nil, errors.New("invalid request: empty query")
	}

	vals := url.Values{}
	vals.Set("search_query", "all:"+req.Query)
	vals.Set("start", "0")
	vals.Set("max_results", fmt.Sprintf("%d", maxResults))

	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"?"+vals.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	resp, err := t.httpClient.Do(hreq)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query arXiv")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("arXiv query failed: %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}

	var f feed
	if err := xml.Unmarshal(body, &f); err != nil {
		return nil, errors.Wrap(err, "failed to parse Atom feed")
	}

	if len(f.Entries) == 0 {
		return &SearchResult{Content: NoResultsAnswer}, nil
	}

	rendered := make([]string, 0, len(f.Entries))
	for _, e := range f.Entries {
		names := make([]string, 0, len(e.Authors))
		for _, a := range e.Authors {
			names = append(names, a.Name)
		}
		text := fmt.Sprintf("Published: %s\nTitle: %s\nAuthors: %s\nSummary: %s",
			strings.TrimSpace(e.Published),
			strings.TrimSpace(e.Title),
			strings.Join(names, ", "),
			strings.TrimSpace(e.Summary),
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
