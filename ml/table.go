package ml

import "sort"

// FeatureTable is an ordered set of rows sharing one column list.
type FeatureTable struct {
	Columns []string
	Rows    []RawRecord
}

// NewFeatureTable builds a table from rows, collecting columns in the order
// they are first seen.
func NewFeatureTable(rows []RawRecord, order []string) *FeatureTable {
	t := &FeatureTable{Rows: rows}
	seen := make(map[string]bool)
	for _, name := range order {
		if !seen[name] {
			seen[name] = true
			t.Columns = append(t.Columns, name)
		}
	}
	for _, row := range rows {
		var extra []string
		for name := range row {
			if !seen[name] {
				seen[name] = true
				extra = append(extra, name)
			}
		}
		sort.Strings(extra)
		t.Columns = append(t.Columns, extra...)
	}
	return t
}

// Len returns the number of rows.
func (t *FeatureTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HasColumn reports whether name is one of the table's columns.
func (t *FeatureTable) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

func (t *FeatureTable) addColumn(name string) {
	if !t.HasColumn(name) {
		t.Columns = append(t.Columns, name)
	}
}
