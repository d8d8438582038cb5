package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	"farecast/ml"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Source names the request shape a table came from.
type Source string

const (
	SourceForm   Source = "form"
	SourceFile   Source = "file"
	SourceJSON   Source = "json"
	SourceManual Source = "manual"
)

// formatParser is one attempt at reading an uploaded file.
type formatParser struct {
	name  string
	parse func(data []byte) ([]ml.RawRecord, []string, error)
}

// Normalizer turns the four accepted request shapes into a FeatureTable.
type Normalizer struct {
	profile ml.Profile
	parsers []formatParser
	cleaner *DataCleaner
}

// NewNormalizer creates a normalizer for profile. cleaner may be nil.
func NewNormalizer(profile ml.Profile, cleaner *DataCleaner) *Normalizer {
	return &Normalizer{
		profile: profile,
		parsers: []formatParser{
			{name: "csv", parse: parseCSV},
			{name: "json", parse: parseJSONTable},
		},
		cleaner: cleaner,
	}
}

// Profile returns the domain profile in use.
func (n *Normalizer) Profile() ml.Profile { return n.profile }

// FromForm builds the single row of a form submission. Declared fields are
// coerced to their type; a missing required field is a ValidationError.
func (n *Normalizer) FromForm(form url.Values, schema ml.ModelSchema) (*ml.FeatureTable, error) {
	rec := make(ml.RawRecord, len(form))
	for name, values := range form {
		if len(values) == 0 {
			continue
		}
		if v := strings.TrimSpace(values[0]); v != "" {
			rec[name] = ml.StringValue(v)
		}
	}
	return n.singleRow(rec, schema)
}

// FromManual builds the single row of the demo entry path, where fields
// arrive as a JSON object rather than a form.
func (n *Normalizer) FromManual(body []byte, schema ml.ModelSchema) (*ml.FeatureTable, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(body, &obj); err != nil || obj == nil {
		return nil, &ml.ValidationError{Reason: "manual input must be a JSON object of fields"}
	}
	rec, err := recordFromJSON(obj, 0)
	if err != nil {
		return nil, err
	}
	return n.singleRow(rec, schema)
}

func (n *Normalizer) singleRow(rec ml.RawRecord, schema ml.ModelSchema) (*ml.FeatureTable, error) {
	order := make([]string, 0, len(rec))
	for _, f := range n.profile.FormFields(schema) {
		v, ok := rec[f.Name]
		if !ok {
			if f.Required {
				return nil, &ml.ValidationError{Field: f.Name, Reason: "field is required"}
			}
			continue
		}
		typed, err := ml.Coerce(f.Name, v, f.Type)
		if err != nil {
			return nil, err
		}
		rec[f.Name] = typed
		order = append(order, f.Name)
	}
	if err := n.coerceDeclared(rec, 0); err != nil {
		return nil, err
	}
	rows := []ml.RawRecord{rec}
	if err := n.clean(rows); err != nil {
		return nil, err
	}
	return ml.NewFeatureTable(rows, order), nil
}

// FromFile reads an uploaded file: CSV first, then a JSON table. When every
// parser rejects it the error lists each attempt. A parsed header without
// the trip columns is an InvalidInputError when the profile derives.
func (n *Normalizer) FromFile(data []byte) (*ml.FeatureTable, error) {
	data, err := decodeText(data)
	if err != nil {
		return nil, &ml.UnsupportedFormatError{
			Attempts: map[string]error{"decode": err},
			Order:    []string{"decode"},
		}
	}
	failed := &ml.UnsupportedFormatError{Attempts: make(map[string]error, len(n.parsers))}
	for _, p := range n.parsers {
		rows, order, err := p.parse(data)
		if err != nil {
			failed.Attempts[p.name] = err
			failed.Order = append(failed.Order, p.name)
			continue
		}
		if n.profile.Derive && order != nil {
			if err := ml.RequireDerivationColumns(order); err != nil {
				return nil, err
			}
		}
		return n.batch(rows, order)
	}
	return nil, failed
}

// FromJSON reads a request body: {"rows": [...]} or a bare list of objects.
func (n *Normalizer) FromJSON(body []byte) (*ml.FeatureTable, error) {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &ml.ValidationError{Reason: "body is not valid JSON"}
	}
	var items []interface{}
	switch v := doc.(type) {
	case []interface{}:
		items = v
	case map[string]interface{}:
		rows, ok := v["rows"]
		if !ok {
			return nil, &ml.ValidationError{Reason: `JSON body must be {"rows": [...]} or a list of objects`}
		}
		list, ok := rows.([]interface{})
		if !ok {
			return nil, &ml.ValidationError{Field: "rows", Reason: "must be a list of objects"}
		}
		items = list
	default:
		return nil, &ml.ValidationError{Reason: `JSON body must be {"rows": [...]} or a list of objects`}
	}
	rows, order, err := recordsFromJSON(items)
	if err != nil {
		return nil, err
	}
	return n.batch(rows, order)
}

func (n *Normalizer) batch(rows []ml.RawRecord, order []string) (*ml.FeatureTable, error) {
	for i, rec := range rows {
		if err := n.coerceDeclared(rec, i+1); err != nil {
			return nil, err
		}
	}
	if err := n.clean(rows); err != nil {
		return nil, err
	}
	return ml.NewFeatureTable(rows, order), nil
}

// coerceDeclared types every present field the profile declares.
func (n *Normalizer) coerceDeclared(rec ml.RawRecord, row int) error {
	for _, f := range n.profile.Fields {
		v, ok := rec[f.Name]
		if !ok {
			continue
		}
		typed, err := ml.Coerce(f.Name, v, f.Type)
		if err != nil {
			var ve *ml.ValidationError
			if errors.As(err, &ve) {
				ve.Row = row
			}
			return err
		}
		rec[f.Name] = typed
	}
	return nil
}

func (n *Normalizer) clean(rows []ml.RawRecord) error {
	if n.cleaner == nil {
		return nil
	}
	return n.cleaner.Check(rows)
}

// decodeText converts uploads to UTF-8. UTF-16 is recognised by its BOM;
// other invalid UTF-8 is read as Windows-1252, the usual spreadsheet export.
func decodeText(data []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		return data[3:], nil
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}), bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		return io.ReadAll(transform.NewReader(bytes.NewReader(data), dec))
	case utf8.Valid(data):
		return data, nil
	}
	return io.ReadAll(transform.NewReader(bytes.NewReader(data), charmap.Windows1252.NewDecoder()))
}

func parseCSV(data []byte) ([]ml.RawRecord, []string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil, errors.New("empty file")
	}
	if trimmed[0] == '[' || trimmed[0] == '{' {
		return nil, nil, errors.New("content looks like JSON")
	}

	reader := csv.NewReader(bytes.NewReader(trimmed))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
		if header[i] == "" {
			return nil, nil, fmt.Errorf("header column %d is empty", i+1)
		}
	}

	var rows []ml.RawRecord
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		if len(record) > len(header) {
			line, _ := reader.FieldPos(0)
			return nil, nil, fmt.Errorf("line %d has %d fields, header has %d", line, len(record), len(header))
		}
		rec := make(ml.RawRecord, len(header))
		for i, cell := range record {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			rec[header[i]] = ml.StringValue(cell)
		}
		rows = append(rows, rec)
	}
	return rows, header, nil
}

// parseJSONTable accepts a list of row objects, {"rows": [...]}, or a
// column-oriented object whose values are equal-length lists.
func parseJSONTable(data []byte) ([]ml.RawRecord, []string, error) {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, err
	}
	switch v := doc.(type) {
	case []interface{}:
		return recordsFromJSON(v)
	case map[string]interface{}:
		if rows, ok := v["rows"].([]interface{}); ok {
			return recordsFromJSON(rows)
		}
		return recordsFromColumns(v)
	}
	return nil, nil, errors.New("JSON is not a table")
}

func recordsFromColumns(cols map[string]interface{}) ([]ml.RawRecord, []string, error) {
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)

	length := -1
	lists := make(map[string][]interface{}, len(cols))
	for _, name := range names {
		list, ok := cols[name].([]interface{})
		if !ok {
			return nil, nil, fmt.Errorf("column %q is not a list", name)
		}
		if length >= 0 && len(list) != length {
			return nil, nil, fmt.Errorf("column %q has %d values, expected %d", name, len(list), length)
		}
		length = len(list)
		lists[name] = list
	}
	if length < 0 {
		return nil, nil, errors.New("JSON object has no columns")
	}

	rows := make([]ml.RawRecord, length)
	for i := range rows {
		obj := make(map[string]interface{}, len(names))
		for _, name := range names {
			obj[name] = lists[name][i]
		}
		rec, err := recordFromJSON(obj, i+1)
		if err != nil {
			return nil, nil, err
		}
		rows[i] = rec
	}
	return rows, names, nil
}

func recordsFromJSON(items []interface{}) ([]ml.RawRecord, []string, error) {
	rows := make([]ml.RawRecord, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, nil, &ml.ValidationError{Row: i + 1, Reason: "row is not a JSON object"}
		}
		rec, err := recordFromJSON(obj, i+1)
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, rec)
	}
	return rows, nil, nil
}

func recordFromJSON(obj map[string]interface{}, row int) (ml.RawRecord, error) {
	rec := make(ml.RawRecord, len(obj))
	for name, raw := range obj {
		switch v := raw.(type) {
		case nil:
		case float64:
			rec[name] = ml.NumberValue(v)
		case bool:
			if v {
				rec[name] = ml.NumberValue(1)
			} else {
				rec[name] = ml.NumberValue(0)
			}
		case string:
			if s := strings.TrimSpace(v); s != "" {
				rec[name] = ml.StringValue(s)
			}
		default:
			return nil, &ml.ValidationError{Field: name, Row: row, Reason: "nested values are not supported"}
		}
	}
	return rec, nil
}
