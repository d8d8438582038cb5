package ml

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports a malformed or missing client-supplied field.
type ValidationError struct {
	Field  string
	Row    int // 1-based; 0 when the error is not row specific
	Reason string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("validation failed")
	if e.Row > 0 {
		fmt.Fprintf(&b, " at row %d", e.Row)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " for %s", e.Field)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

// InvalidInputError reports a missing or unparsable field that feature
// derivation depends on.
type InvalidInputError struct {
	Field  string
	Row    int
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("invalid input at row %d for %s: %s", e.Row, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid input for %s: %s", e.Field, e.Reason)
}

// UnsupportedFormatError is returned when no parser accepts an upload.
type UnsupportedFormatError struct {
	Attempts map[string]error
	Order    []string
}

func (e *UnsupportedFormatError) Error() string {
	parts := make([]string, 0, len(e.Order))
	for _, name := range e.Order {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Attempts[name]))
	}
	return "uploaded file is not valid CSV or JSON (" + strings.Join(parts, "; ") + ")"
}

// ModelUnavailableError reports a missing or unusable model/schema artifact.
type ModelUnavailableError struct {
	Path string
	Err  error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("model unavailable (%s): %v", e.Path, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

// PredictionError wraps a failure raised by the model during inference.
type PredictionError struct {
	Err error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("prediction failed: %v", e.Err)
}

func (e *PredictionError) Unwrap() error { return e.Err }

// IsClientError reports whether err is caused by the request payload.
func IsClientError(err error) bool {
	var (
		ve *ValidationError
		ie *InvalidInputError
		ue *UnsupportedFormatError
	)
	return errors.As(err, &ve) || errors.As(err, &ie) || errors.As(err, &ue)
}

// Stage names the pipeline step an error belongs to, for logging.
func Stage(err error) string {
	var (
		ve *ValidationError
		ie *InvalidInputError
		ue *UnsupportedFormatError
		me *ModelUnavailableError
		pe *PredictionError
	)
	switch {
	case errors.As(err, &ue), errors.As(err, &ve):
		return "normalize"
	case errors.As(err, &ie):
		return "derive"
	case errors.As(err, &me):
		return "load"
	case errors.As(err, &pe):
		return "predict"
	}
	return "unknown"
}

// ErrorField returns the offending field name carried by err, if any.
func ErrorField(err error) string {
	var (
		ve *ValidationError
		ie *InvalidInputError
	)
	if errors.As(err, &ve) {
		return ve.Field
	}
	if errors.As(err, &ie) {
		return ie.Field
	}
	return ""
}
