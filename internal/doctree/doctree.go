package doctree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// TableType is the semantic category assigned to an extracted table.
type TableType string

const (
	TableFinancial    TableType = "financial"
	TableCompensation TableType = "compensation"
	TableEntity       TableType = "entity"
	TablePolicy       TableType = "policy"
	TableUnknown      TableType = "unknown"
)

// Structured reports whether tables of this type are kept as records and
// removed from the narrative.
func (t TableType) Structured() bool {
	switch t {
	case TableFinancial, TableCompensation, TableEntity:
		return true
	}
	return false
}

// Row is one body row of a table record. Cells is set when the row has one
// cell per header; otherwise Raw holds the cells in order. Keys, when set,
// is the column order used for JSON output.
type Row struct {
	Cells map[string]string
	Raw   []string
	Keys  []string
}

// NewRow pairs headers with cells, keeping header order.
func NewRow(headers, cells []string) Row {
	r := Row{Cells: make(map[string]string, len(headers))}
	for i, h := range headers {
		if _, dup := r.Cells[h]; !dup {
			r.Keys = append(r.Keys, h)
		}
		r.Cells[h] = cells[i]
	}
	return r
}

// MarshalJSON renders the row as a header→value object, or {"row": [...]}
// for the fallback form. Object keys follow Keys, then any remaining cells
// in sorted order.
func (r Row) MarshalJSON() ([]byte, error) {
	if r.Cells == nil {
		return json.Marshal(map[string][]string{"row": r.Raw})
	}
	keys := r.orderedKeys()
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.Cells[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r Row) orderedKeys() []string {
	keys := make([]string, 0, len(r.Cells))
	seen := make(map[string]bool, len(r.Cells))
	for _, k := range r.Keys {
		if _, ok := r.Cells[k]; ok && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range r.Cells {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// UnmarshalJSON accepts both forms produced by MarshalJSON and keeps the
// object's key order.
func (r *Row) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["row"]; ok && len(raw) == 1 {
		var cells []string
		if err := json.Unmarshal(v, &cells); err == nil {
			r.Raw = cells
			r.Cells = nil
			r.Keys = nil
			return nil
		}
	}

	r.Raw = nil
	r.Cells = map[string]string{}
	r.Keys = nil
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("row key: unexpected token %v", tok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("row value %q: %w", key, err)
		}
		if _, dup := r.Cells[key]; !dup {
			r.Keys = append(r.Keys, key)
		}
		r.Cells[key] = value
	}
	return nil
}

// Values returns the row's cells in header order.
func (r Row) Values(headers []string) []string {
	if r.Cells == nil {
		return r.Raw
	}
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = r.Cells[h]
	}
	return out
}

// Table is a structured table pulled out of a filing.
type Table struct {
	Headers []string  `json:"headers"`
	Rows    []Row     `json:"rows"`
	Type    TableType `json:"table_type"`
}

// Image is an informative image found in a filing. ItemCode is the last
// section marker seen before the image, or empty when none preceded it.
type Image struct {
	ImageID     string `json:"image_id"`
	ImageURL    string `json:"image_url"`
	ImagePath   string `json:"image_path"`
	AltText     string `json:"alt_text"`
	Description string `json:"image_description"`
	ItemCode    string `json:"item_code,omitempty"`
}

// Result is everything extracted from one filing document.
type Result struct {
	Title  string  `json:"title,omitempty"`
	Text   string  `json:"text"`
	Tables []Table `json:"tables"`
	Images []Image `json:"images"`
}

// Section is a (code, text) span of narrative text.
type Section struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

// Chunk is a sized text segment ready for embedding.
type Chunk struct {
	Text    string `json:"text"`    // Header-prefixed when a header was supplied
	Index   int    `json:"index"`   // Sequence number within its section
	Section string `json:"section"` // Canonical item code
}
