package ml

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchemaShapes(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		want    []string
		wantErr bool
	}{
		{name: "object", doc: `{"features": ["a", "b"]}`, want: []string{"a", "b"}},
		{name: "bare list", doc: `["x", "y", "z"]`, want: []string{"x", "y", "z"}},
		{name: "empty list", doc: `[]`, wantErr: true},
		{name: "object without features", doc: `{"columns": ["a"]}`, wantErr: true},
		{name: "duplicate", doc: `["a", "a"]`, wantErr: true},
		{name: "scalar", doc: `42`, wantErr: true},
		{name: "not json", doc: `features: a`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseSchema([]byte(tt.doc))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Columns())
		})
	}
}

func TestLoadSchemaFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feature_columns.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"features":["distance_miles","passenger_count"]}`), 0o600))

	s, err := LoadSchema(path)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 1, s.Index("passenger_count"))
	assert.Equal(t, -1, s.Index("month"))
}

func mustSchema(t *testing.T, cols ...string) ModelSchema {
	t.Helper()
	s, err := NewModelSchema(cols)
	require.NoError(t, err)
	return s
}

func TestReconcilePadsDropsAndReorders(t *testing.T) {
	schema := mustSchema(t, "distance_miles", "passenger_count", "hour_of_day")
	table := NewFeatureTable([]RawRecord{
		{"hour_of_day": NumberValue(8), "distance_miles": NumberValue(3.9), "vendor": StringValue("CMT")},
		{"hour_of_day": NumberValue(9), "distance_miles": StringValue("1.5"), "passenger_count": StringValue("2")},
	}, nil)

	m, err := Reconcile(table, schema)
	require.NoError(t, err)
	assert.Equal(t, schema.Columns(), m.Columns)
	assert.Equal(t, [][]float64{{3.9, 0, 8}, {1.5, 2, 9}}, m.Rows)
	assert.Equal(t, 1, m.Filled["passenger_count"])
}

func TestReconcileEmptyCellTakesDefault(t *testing.T) {
	schema := mustSchema(t, "a", "b")
	table := NewFeatureTable([]RawRecord{{"a": NumberValue(1), "b": StringValue("  ")}}, nil)

	m, err := Reconcile(table, schema)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, DefaultFill}}, m.Rows)
}

func TestReconcileIsIdempotent(t *testing.T) {
	schema := mustSchema(t, "c", "a", "b")
	table := NewFeatureTable([]RawRecord{
		{"a": NumberValue(1), "z": NumberValue(5)},
		{"b": NumberValue(2), "c": NumberValue(3)},
	}, nil)

	first, err := Reconcile(table, schema)
	require.NoError(t, err)
	second, err := Reconcile(first.Table(), schema)
	require.NoError(t, err)

	assert.Equal(t, first.Columns, second.Columns)
	assert.Equal(t, first.Rows, second.Rows)
}

func TestReconcileZeroRows(t *testing.T) {
	schema := mustSchema(t, "a", "b")

	m, err := Reconcile(&FeatureTable{}, schema)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, m.Columns)
	assert.Equal(t, 0, m.Len())

	m, err = Reconcile(nil, schema)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, m.Columns)
}

func TestReconcileRejectsNonNumeric(t *testing.T) {
	schema := mustSchema(t, "a")
	table := NewFeatureTable([]RawRecord{{"a": NumberValue(1)}, {"a": StringValue("many")}}, nil)

	_, err := Reconcile(table, schema)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "a", ve.Field)
	assert.Equal(t, 2, ve.Row)

	for _, raw := range []string{"Inf", "-Infinity", "NaN"} {
		t.Run(raw, func(t *testing.T) {
			table := NewFeatureTable([]RawRecord{{"a": StringValue(raw)}}, nil)
			_, err := Reconcile(table, schema)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, "a", ve.Field)
		})
	}
	table = NewFeatureTable([]RawRecord{{"a": NumberValue(math.Inf(1))}}, nil)
	_, err = Reconcile(table, schema)
	assert.True(t, errors.As(err, &ve))
}

func TestSchemaColumnsAreCopies(t *testing.T) {
	s := mustSchema(t, "a", "b")
	cols := s.Columns()
	cols[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, s.Columns())
}
