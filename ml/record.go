package ml

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	KindString ValueKind = iota
	KindNumber
	KindTimestamp
)

func (k ValueKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindTimestamp:
		return "timestamp"
	default:
		return "string"
	}
}

// Value is a single raw field value: a string, a number or a timestamp.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Time time.Time
}

func StringValue(s string) Value       { return Value{Kind: KindString, Str: s} }
func NumberValue(f float64) Value      { return Value{Kind: KindNumber, Num: f} }
func TimestampValue(t time.Time) Value { return Value{Kind: KindTimestamp, Time: t} }

// Raw renders the value back to the text a client would have sent.
func (v Value) Raw() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindTimestamp:
		return v.Time.Format(time.RFC3339)
	default:
		return v.Str
	}
}

// MarshalJSON keeps numbers numeric in logs and the prediction store.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumber:
		return []byte(strconv.FormatFloat(v.Num, 'g', -1, 64)), nil
	default:
		return []byte(strconv.Quote(v.Raw())), nil
	}
}

// RawRecord maps a field name to its raw value. One per input row.
type RawRecord map[string]Value

// FieldType is the declared type of a known input field.
type FieldType int

const (
	FieldString FieldType = iota
	FieldFloat
	FieldInt
	FieldTimestamp
)

func (t FieldType) String() string {
	switch t {
	case FieldFloat:
		return "float"
	case FieldInt:
		return "integer"
	case FieldTimestamp:
		return "timestamp"
	default:
		return "string"
	}
}

// FieldSpec declares one input field.
type FieldSpec struct {
	Name     string
	Type     FieldType
	Required bool
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05 MST",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 style timestamp. The offset written in
// the string is kept as-is; strings without one are read as UTC wall time.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// Coerce converts v to the declared type. It is the single place raw input
// becomes typed; failures come back as *ValidationError naming the field.
func Coerce(field string, v Value, typ FieldType) (Value, error) {
	switch typ {
	case FieldString:
		return StringValue(v.Raw()), nil
	case FieldFloat:
		if f, ok := v.Number(); ok {
			return NumberValue(f), nil
		}
		return Value{}, &ValidationError{Field: field, Reason: fmt.Sprintf("expected %s, got %q", typ, v.Raw())}
	case FieldInt:
		switch v.Kind {
		case KindNumber:
			if isFinite(v.Num) && v.Num == float64(int64(v.Num)) {
				return v, nil
			}
		case KindString:
			s := strings.TrimSpace(v.Str)
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return NumberValue(float64(n)), nil
			}
			// CSV exports frequently write integers as "1.0".
			if f, err := strconv.ParseFloat(s, 64); err == nil && isFinite(f) && f == float64(int64(f)) {
				return NumberValue(f), nil
			}
		}
		return Value{}, &ValidationError{Field: field, Reason: fmt.Sprintf("expected %s, got %q", typ, v.Raw())}
	case FieldTimestamp:
		if v.Kind == KindTimestamp {
			return v, nil
		}
		if v.Kind == KindString {
			if t, err := ParseTimestamp(v.Str); err == nil {
				return TimestampValue(t), nil
			}
		}
		return Value{}, &ValidationError{Field: field, Reason: fmt.Sprintf("expected %s, got %q", typ, v.Raw())}
	}
	return v, nil
}

// Number returns the numeric content of v, parsing strings when needed.
// NaN and infinities, which ParseFloat accepts, are not numbers here.
func (v Value) Number() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, isFinite(v.Num)
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		return f, err == nil && isFinite(f)
	}
	return 0, false
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
