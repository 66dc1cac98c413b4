package query

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/aiguide/pkg/interfaces"
	"github.com/m-mizutani/aiguide/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

//go:embed prompt/filter.md
var filterPromptRaw string

var filterPromptTmpl = template.Must(template.New("filter").Parse(filterPromptRaw))

type filterOutput struct {
	Cuisine  string   `json:"cuisine,omitempty" jsonschema:"cuisine or dish style explicitly requested"`
	Location string   `json:"location,omitempty" jsonschema:"city or locality explicitly named"`
	MaxCost  *float64 `json:"max_cost,omitempty" jsonschema:"upper bound of cost for two people"`
}

// filterSchema is the response contract of filter extraction. Unknown fields are rejected.
var filterSchema, filterResolved = mustFilterSchema()

func mustFilterSchema() (*jsonschema.Schema, *jsonschema.Resolved) {
	schema, err := jsonschema.For[filterOutput](nil)
	if err != nil {
		panic(err)
	}
	zero := 0.0
	schema.Properties["max_cost"].Minimum = &zero

	resolved, err := schema.Resolve(nil)
	if err != nil {
		panic(err)
	}
	return schema, resolved
}

// FilterExtractor derives FilterCriteria from a query with a language model. Any failure is
// reported as a failed FilterResult instead of an error so that search can continue unfiltered.
type FilterExtractor struct {
	llm interfaces.StructuredGenerator
}

func NewFilterExtractor(llm interfaces.StructuredGenerator) *FilterExtractor {
	return &FilterExtractor{llm: llm}
}

func (x *FilterExtractor) Extract(ctx context.Context, query string) model.FilterResult {
	var buf bytes.Buffer
	if err := filterPromptTmpl.Execute(&buf, map[string]any{"Query": query}); err != nil {
		return model.FilterFailed("failed to render filter prompt: " + err.Error())
	}

	raw, err := x.llm.GenerateJSON(ctx, buf.String(), filterSchema)
	if err != nil {
		return model.FilterFailed("filter generation failed: " + err.Error())
	}

	criteria, err := parseFilter(raw)
	if err != nil {
		return model.FilterFailed(err.Error())
	}
	return model.FilterExtracted(criteria)
}

// parseFilter strictly validates raw against filterSchema and converts it
func parseFilter(raw string) (*model.FilterCriteria, error) {
	raw = strings.TrimSpace(raw)

	var instance any
	if err := json.Unmarshal([]byte(raw), &instance); err != nil {
		return nil, goerr.Wrap(model.ErrInvalidFilter, "filter is not JSON", goerr.V("raw", raw), goerr.V("cause", err.Error()))
	}
	if err := filterResolved.Validate(instance); err != nil {
		return nil, goerr.Wrap(model.ErrInvalidFilter, "filter violates schema", goerr.V("raw", raw), goerr.V("cause", err.Error()))
	}

	var out filterOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, goerr.Wrap(model.ErrInvalidFilter, "failed to decode filter", goerr.V("raw", raw))
	}

	criteria := &model.FilterCriteria{
		Cuisine:  strings.TrimSpace(out.Cuisine),
		Location: strings.TrimSpace(out.Location),
		MaxCost:  out.MaxCost,
	}
	if err := criteria.Validate(); err != nil {
		return nil, err
	}
	return criteria, nil
}
