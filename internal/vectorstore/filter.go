package vectorstore

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Condition matches records whose Field equals Value.
type Condition struct {
	Field string
	Value any
}

// MarshalJSON renders the condition as a single-key object.
func (c Condition) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{c.Field: c.Value})
}

// Where restricts a query. Every And condition must hold. Or conditions
// are grouped by field: a record must match at least one value for each
// field named in Or.
type Where struct {
	And []Condition `json:"and"`
	Or  []Condition `json:"or"`
}

// Empty reports whether the filter matches everything.
func (w Where) Empty() bool {
	return len(w.And) == 0 && len(w.Or) == 0
}

// Validate checks every field against Fields.
func (w Where) Validate() error {
	for _, c := range append(slices.Clone(w.And), w.Or...) {
		if !slices.Contains(Fields, c.Field) {
			return fmt.Errorf("%w: %q", ErrUnknownField, c.Field)
		}
	}
	return nil
}

func (w Where) sql() (string, []any, error) {
	if err := w.Validate(); err != nil {
		return "", nil, err
	}

	var (
		clauses []string
		args    []any
	)
	for _, c := range w.And {
		clauses = append(clauses, c.Field+" = ?")
		args = append(args, c.Value)
	}

	var order []string
	groups := map[string][]any{}
	for _, c := range w.Or {
		if _, ok := groups[c.Field]; !ok {
			order = append(order, c.Field)
		}
		groups[c.Field] = append(groups[c.Field], c.Value)
	}
	for _, f := range order {
		vals := groups[f]
		clauses = append(clauses, fmt.Sprintf("%s IN (?%s)", f, strings.Repeat(", ?", len(vals)-1)))
		args = append(args, vals...)
	}

	return strings.Join(clauses, " AND "), args, nil
}
