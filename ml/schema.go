package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
)

// DefaultFill is written into schema columns the input did not provide.
const DefaultFill = 0.0

// ModelSchema is the ordered list of feature columns a model expects.
// It is immutable once built.
type ModelSchema struct {
	columns []string
	index   map[string]int
}

// NewModelSchema validates and freezes a column list.
func NewModelSchema(columns []string) (ModelSchema, error) {
	if len(columns) == 0 {
		return ModelSchema{}, errors.New("schema has no feature columns")
	}
	index := make(map[string]int, len(columns))
	cols := make([]string, len(columns))
	for i, c := range columns {
		c = strings.TrimSpace(c)
		if c == "" {
			return ModelSchema{}, fmt.Errorf("schema column %d is empty", i)
		}
		if _, dup := index[c]; dup {
			return ModelSchema{}, fmt.Errorf("schema column %q is duplicated", c)
		}
		index[c] = i
		cols[i] = c
	}
	return ModelSchema{columns: cols, index: index}, nil
}

// ParseSchema reads either {"features": [...]} or a bare JSON list of names.
func ParseSchema(data []byte) (ModelSchema, error) {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		return NewModelSchema(list)
	}
	var doc struct {
		Features *[]string `json:"features"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return ModelSchema{}, fmt.Errorf("schema is neither a list nor an object: %w", err)
	}
	if doc.Features == nil {
		return ModelSchema{}, errors.New(`schema object has no "features" key`)
	}
	return NewModelSchema(*doc.Features)
}

// LoadSchema reads a schema artifact from disk.
func LoadSchema(path string) (ModelSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ModelSchema{}, err
	}
	return ParseSchema(data)
}

// Columns returns a copy of the column names in model order.
func (s ModelSchema) Columns() []string {
	return append([]string(nil), s.columns...)
}

func (s ModelSchema) Len() int { return len(s.columns) }

// Index returns the position of name, or -1.
func (s ModelSchema) Index(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// FeatureMatrix is a table projected onto a schema: one row per input row,
// one column per schema entry, in schema order.
type FeatureMatrix struct {
	Columns []string
	Rows    [][]float64
	// Filled lists, per schema column, how many rows took DefaultFill.
	Filled map[string]int
}

// Len returns the number of rows.
func (m FeatureMatrix) Len() int { return len(m.Rows) }

// Table turns the matrix back into a table with numeric values.
func (m FeatureMatrix) Table() *FeatureTable {
	rows := make([]RawRecord, len(m.Rows))
	for i, r := range m.Rows {
		rec := make(RawRecord, len(m.Columns))
		for j, c := range m.Columns {
			rec[c] = NumberValue(r[j])
		}
		rows[i] = rec
	}
	return &FeatureTable{Columns: append([]string(nil), m.Columns...), Rows: rows}
}

// Reconcile projects table onto schema. Schema columns the table lacks, or
// that a row leaves empty, take DefaultFill; columns outside the schema are
// dropped. A present value that is not numeric is a ValidationError.
func Reconcile(table *FeatureTable, schema ModelSchema) (FeatureMatrix, error) {
	m := FeatureMatrix{
		Columns: schema.Columns(),
		Rows:    make([][]float64, table.Len()),
		Filled:  make(map[string]int),
	}
	if table == nil {
		return m, nil
	}
	for i, rec := range table.Rows {
		vec := make([]float64, len(m.Columns))
		for j, col := range m.Columns {
			v, ok := rec[col]
			if !ok || (v.Kind == KindString && strings.TrimSpace(v.Str) == "") {
				vec[j] = DefaultFill
				m.Filled[col]++
				continue
			}
			f, ok := v.Number()
			if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
				return FeatureMatrix{}, &ValidationError{
					Field:  col,
					Row:    i + 1,
					Reason: fmt.Sprintf("feature value %q is not a finite number", v.Raw()),
				}
			}
			vec[j] = f
		}
		m.Rows[i] = vec
	}
	return m, nil
}
