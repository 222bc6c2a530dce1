// Package retrieval validates structured retrieval requests, turns their
// filters into vector store conditions and assembles retrieved chunks into
// answer context.
package retrieval

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dgallion1/filingrag/internal/vectorstore"
)

// DefaultTopK is used when a request omits top_k.
const DefaultTopK = 5

// Request is a retrieval request as produced by a query planner.
type Request struct {
	Query   string   `json:"query"`
	Filters *Filters `json:"filters,omitempty"`
	TopK    int      `json:"top_k,omitempty"`
}

// Filters holds raw filter entries. Each entry maps one field to a value.
// AND values may be lists, which expand into OR alternatives.
type Filters struct {
	And []map[string]any `json:"and,omitempty"`
	Or  []map[string]any `json:"or,omitempty"`
}

const requestSchemaSrc = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": ["query"],
  "properties": {
    "query": {"type": "string", "minLength": 1},
    "filters": {"type": ["object", "null"]},
    "top_k": {"type": "integer", "minimum": 1}
  }
}`

func filtersSchemaSrc() string {
	fields, _ := json.Marshal(vectorstore.Fields)
	return fmt.Sprintf(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "and": {"type": "array", "items": {"$ref": "#/$defs/andEntry"}},
    "or": {"type": "array", "items": {"$ref": "#/$defs/orEntry"}}
  },
  "$defs": {
    "field": {"enum": %s},
    "scalar": {"type": ["string", "integer"]},
    "andEntry": {
      "type": "object",
      "minProperties": 1,
      "propertyNames": {"$ref": "#/$defs/field"},
      "additionalProperties": {
        "anyOf": [
          {"$ref": "#/$defs/scalar"},
          {"type": "array", "minItems": 1, "items": {"$ref": "#/$defs/scalar"}}
        ]
      }
    },
    "orEntry": {
      "type": "object",
      "minProperties": 1,
      "propertyNames": {"$ref": "#/$defs/field"},
      "additionalProperties": {"$ref": "#/$defs/scalar"}
    }
  }
}`, fields)
}

var (
	requestSchema = jsonschema.MustCompileString("request.json", requestSchemaSrc)
	filtersSchema = jsonschema.MustCompileString("filters.json", filtersSchemaSrc())
)

// DecodeRequest parses and validates a JSON retrieval request.
func DecodeRequest(data []byte) (Request, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return Request{}, &QueryError{Err: ErrInvalidRequest, Cause: err}
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return Request{}, &QueryError{Err: ErrInvalidRequest, Cause: fmt.Errorf("request must be an object")}
	}
	if q, _ := obj["query"].(string); strings.TrimSpace(q) == "" {
		return Request{}, &QueryError{Err: ErrMissingQuery}
	}

	query := obj["query"].(string)
	if err := requestSchema.Validate(doc); err != nil {
		return Request{}, &QueryError{Err: ErrInvalidRequest, Cause: err, Query: query}
	}
	if f := obj["filters"]; f != nil {
		if err := filtersSchema.Validate(f); err != nil {
			return Request{}, &QueryError{Err: ErrInvalidFilter, Cause: err, Query: query}
		}
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, &QueryError{Err: ErrInvalidRequest, Cause: err, Query: query}
	}
	return req, nil
}

// NormalizeFilters expands list-valued AND entries into OR alternatives for
// the same field and converts digit strings in those lists to integers.
// Scalar AND entries must name distinct fields.
func NormalizeFilters(f *Filters) (vectorstore.Where, error) {
	where := vectorstore.Where{And: []vectorstore.Condition{}, Or: []vectorstore.Condition{}}
	if f == nil {
		return where, nil
	}

	seen := map[string]bool{}
	for _, entry := range f.And {
		for _, field := range sortedKeys(entry) {
			if list, ok := asList(entry[field]); ok {
				for _, item := range list {
					v, err := listValue(item)
					if err != nil {
						return where, fmt.Errorf("%w: %s: %v", ErrInvalidFilter, field, err)
					}
					where.Or = append(where.Or, vectorstore.Condition{Field: field, Value: v})
				}
				continue
			}
			if seen[field] {
				return where, fmt.Errorf("%w: field %q repeated in and", ErrInvalidFilter, field)
			}
			seen[field] = true
			v, err := scalarValue(entry[field])
			if err != nil {
				return where, fmt.Errorf("%w: %s: %v", ErrInvalidFilter, field, err)
			}
			where.And = append(where.And, vectorstore.Condition{Field: field, Value: v})
		}
	}

	for _, entry := range f.Or {
		for _, field := range sortedKeys(entry) {
			v, err := scalarValue(entry[field])
			if err != nil {
				return where, fmt.Errorf("%w: %s: %v", ErrInvalidFilter, field, err)
			}
			where.Or = append(where.Or, vectorstore.Condition{Field: field, Value: v})
		}
	}

	if err := where.Validate(); err != nil {
		return where, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return where, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func asList(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out, true
	}
	return nil, false
}

func scalarValue(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return int(x), nil
		}
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return int(n), nil
		}
	}
	return nil, fmt.Errorf("value %v is not a string or integer", v)
}

func listValue(v any) (any, error) {
	v, err := scalarValue(v)
	if err != nil {
		return nil, err
	}
	if s, ok := v.(string); ok && isDigits(s) {
		if n, err := strconv.Atoi(s); err == nil {
			return n, nil
		}
	}
	return v, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
