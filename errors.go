package mstgrn

import (
	"fmt"
	"strings"
)

// ConfigurationError reports a model configuration that cannot be built,
// detected at construction time or when loading parameters.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("mstgrn: invalid configuration %s: %s", e.Field, e.Reason)
}

func configErrorf(field, format string, args ...interface{}) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ShapeMismatchError reports a runtime tensor whose shape disagrees with the
// declared node count or feature widths. A -1 in Want matches any size.
type ShapeMismatchError struct {
	Op     string
	Want   []int
	Got    []int
	Detail string
}

func (e *ShapeMismatchError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("mstgrn: %s: %s", e.Op, e.Detail)
	}
	return fmt.Sprintf("mstgrn: %s: shape mismatch: want %s, got %s", e.Op, formatShape(e.Want), formatShape(e.Got))
}

// MissingInputError reports an absent input that the current mode requires,
// e.g. labels when curriculum learning is active during training.
type MissingInputError struct {
	Name string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("mstgrn: missing input %q", e.Name)
}

func formatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, s := range shape {
		if s < 0 {
			parts[i] = "*"
		} else {
			parts[i] = fmt.Sprint(s)
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
