// Package chart turns a model's JSON description of a chart into a
// validated, declarative specification bound to query results. The spec
// carries a chart kind plus field bindings; no code from the model is
// ever evaluated.
package chart

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/biflow-io/biflow/llm"
	"github.com/biflow-io/biflow/sqlrun"
)

// Kind enumerates the supported chart kinds.
type Kind string

const (
	KindBar   Kind = "bar"
	KindHBar  Kind = "hbar"
	KindLine  Kind = "line"
	KindArc   Kind = "arc"
	KindTable Kind = "table"
	KindKPI   Kind = "kpi"
)

// Spec is a declarative chart description. X, Y and Color name columns of
// the result set the chart draws from; which of them are required depends
// on the kind.
type Spec struct {
	Kind  Kind   `json:"kind"`
	Title string `json:"title,omitempty"`
	X     string `json:"x,omitempty"`
	Y     string `json:"y,omitempty"`
	Color string `json:"color,omitempty"`
}

// specSchema is the JSON Schema every model-produced spec must satisfy
// before it is accepted.
const specSchema = `{
  "type": "object",
  "required": ["kind"],
  "additionalProperties": false,
  "properties": {
    "kind":  {"type": "string", "enum": ["bar", "hbar", "line", "arc", "table", "kpi"]},
    "title": {"type": "string"},
    "x":     {"type": "string"},
    "y":     {"type": "string"},
    "color": {"type": "string"}
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(specSchema)

// Parse decodes and validates a model's chart output. Markdown code
// fences around the JSON are tolerated and stripped.
func Parse(modelOutput string) (*Spec, error) {
	raw := llm.StripFences(modelOutput)

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("chart spec is not valid JSON: %w", err)
	}
	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return nil, fmt.Errorf("invalid chart spec: %s", errs[0])
		}
		return nil, fmt.Errorf("invalid chart spec")
	}

	var spec Spec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return nil, fmt.Errorf("decoding chart spec: %w", err)
	}
	return &spec, nil
}

// Bind checks the spec's field bindings against the columns of a
// successful result envelope. A spec that references columns the results
// do not contain cannot be drawn and is rejected here rather than at
// render time.
func (s *Spec) Bind(result *sqlrun.Envelope) error {
	if result == nil || !result.Success {
		return fmt.Errorf("cannot bind chart to failed query results")
	}

	cols := make(map[string]struct{}, len(result.Columns))
	for _, c := range result.Columns {
		cols[c] = struct{}{}
	}
	requireColumn := func(field, name string) error {
		if name == "" {
			return fmt.Errorf("chart kind %q requires the %s field", s.Kind, field)
		}
		if _, ok := cols[name]; !ok {
			return fmt.Errorf("chart %s field references unknown column %q", field, name)
		}
		return nil
	}

	switch s.Kind {
	case KindBar, KindHBar, KindLine, KindArc:
		if err := requireColumn("x", s.X); err != nil {
			return err
		}
		if err := requireColumn("y", s.Y); err != nil {
			return err
		}
	case KindKPI:
		if err := requireColumn("y", s.Y); err != nil {
			return err
		}
	case KindTable:
		// A table renders all columns; no bindings required.
	default:
		return fmt.Errorf("unsupported chart kind %q", s.Kind)
	}

	if s.Color != "" {
		if _, ok := cols[s.Color]; !ok {
			return fmt.Errorf("chart color field references unknown column %q", s.Color)
		}
	}
	return nil
}
