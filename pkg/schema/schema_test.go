package schema_test

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/effective-security/reagent/pkg/llmutils"
	"github.com/effective-security/reagent/pkg/schema"
	"github.com/invopop/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type SourceType string

const (
	Web       SourceType = "web"
	Arxiv     SourceType = "arxiv"
	Wikipedia SourceType = "wikipedia"
)

// ResearchRequest represents a research query with optional filters.
type ResearchRequest struct {
	Category string     `json:"category,omitempty" jsonschema:"title=Category,description=Category to narrow the search,example=cs.AI"`
	Query    string     `json:"query" jsonschema:"title=Query,description=Query to search for relevant content,example=quantum computing"`
	Source   SourceType `json:"source" jsonschema:"title=Source,description=Source to search,default=web,enum=web,enum=arxiv,enum=wikipedia"`
	Filters  []*Filter  `json:"filters,omitempty" jsonschema:"title=Filters,description=Filters for the search"`
	Site     *Filter    `json:"site,omitempty" jsonschema:"title=Site,description=Site restriction for the search"`
}

// Filter represents a key-value restriction on a search.
type Filter struct {
	Key   string `json:"key" jsonschema:"title=Key,description=Key of the filter"`
	Value string `json:"value" jsonschema:"title=Value,description=Value of the filter"`
}

func TestSchema(t *testing.T) {
	t.Parallel()

	t.Run("Question", func(t *testing.T) {
		t.Parallel()

		type askInput struct {
			Question string `json:"question" jsonschema:"title=Question,description=The question to research."`
		}

		si, err := schema.New(reflect.TypeOf(askInput{}))
		require.NoError(t, err)
		exp := `{
	"properties": {
		"question": {
			"type": "string",
			"title": "Question",
			"description": "The question to research."
		}
	},
	"type": "object",
	"required": [
		"question"
	]
}`
		assert.Equal(t, exp, si.String())
		assert.Equal(t, exp, llmutils.ToJSONIndent(si.Parameters))
	})

	t.Run("ResearchRequest", func(t *testing.T) {
		t.Parallel()
		s, err := schema.New(reflect.TypeOf(ResearchRequest{}))
		require.NoError(t, err)

		exp := `{
	"properties": {
		"category": {
			"type": "string",
			"title": "Category",
			"description": "Category to narrow the search",
			"examples": [
				"cs.AI"
			]
		},
		"query": {
			"type": "string",
			"title": "Query",
			"description": "Query to search for relevant content",
			"examples": [
				"quantum computing"
			]
		},
		"source": {
			"type": "string",
			"enum": [
				"web",
				"arxiv",
				"wikipedia"
			],
			"title": "Source",
			"description": "Source to search",
			"default": "web"
		},
		"filters": {
			"items": {
				"properties": {
					"key": {
						"type": "string",
						"title": "Key",
						"description": "Key of the filter"
					},
					"value": {
						"type": "string",
						"title": "Value",
						"description": "Value of the filter"
					}
				},
				"type": "object",
				"required": [
					"key",
					"value"
				]
			},
			"type": "array",
			"title": "Filters",
			"description": "Filters for the search"
		},
		"site": {
			"properties": {
				"key": {
					"type": "string",
					"title": "Key",
					"description": "Key of the filter"
				},
				"value": {
					"type": "string",
					"title": "Value",
					"description": "Value of the filter"
				}
			},
			"type": "object",
			"required": [
				"key",
				"value"
			],
			"title": "Site",
			"description": "Site restriction for the search"
		}
	},
	"type": "object",
	"required": [
		"query",
		"source"
	]
}`
		assert.Equal(t, exp, s.String())
		assert.Equal(t, exp, llmutils.ToJSONIndent(s.Parameters))
	})

	t.Run("Weather", func(t *testing.T) {
		t.Parallel()

		type weatherRequest struct {
			Location string `json:"location" jsonschema:"description=City name"`
			Unit     string `json:"unit" jsonschema:"description=Unit of measurement,enum=celsius,enum=fahrenheit"`
		}

		s, err := schema.New(reflect.TypeOf(weatherRequest{}))
		require.NoError(t, err)
		exp := `{
	"properties": {
		"location": {
			"type": "string",
			"description": "City name"
		},
		"unit": {
			"type": "string",
			"enum": [
				"celsius",
				"fahrenheit"
			],
			"description": "Unit of measurement"
		}
	},
	"type": "object",
	"required": [
		"location",
		"unit"
	]
}`
		assert.Equal(t, exp, s.String())

		// unmarshal
		var sc jsonschema.Schema
		err = json.Unmarshal([]byte(exp), &sc)
		require.NoError(t, err)
		assert.Equal(t, 2, sc.Properties.Len())
	})
}

func TestSchemaFromAny(t *testing.T) {
	t.Parallel()

	sc, err := schema.FromAny(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type": "string",
			},
		},
		"required": []string{"query"},
	})
	require.NoError(t, err)

	exp := `{
	"properties": {
		"query": {
			"type": "string"
		}
	},
	"type": "object",
	"required": [
		"query"
	]
}`
	assert.Equal(t, exp, llmutils.ToJSONIndent(sc))
}

func TestSchemaMustFromAny(t *testing.T) {
	t.Parallel()

	sc := schema.MustFromAny(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string"},
		},
	})
	require.NotNil(t, sc)
	assert.Equal(t, "object", sc.Type)

	assert.Panics(t, func() {
		schema.MustFromAny(func() {})
	})
}

func TestSchemaExample(t *testing.T) {
	t.Parallel()

	out, err := schema.Example(reflect.TypeOf(Filter{}))
	require.NoError(t, err)

	var decoded Filter
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
}
