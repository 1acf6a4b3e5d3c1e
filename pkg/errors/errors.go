// Package errors provides the error taxonomy for groupprep.
//
// File and schema level problems are typed errors that abort a run. Row and
// mention level problems never surface here: they degrade to missing values in
// the feature table.
//
// Usage:
//
//	import gperrors "github.com/otherjamesbrown/groupprep/pkg/errors"
//
//	var uc *gperrors.UnknownCategoryError
//	if errors.As(err, &uc) {
//	    // skip the column or abort
//	}
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrMissingColumn indicates a column required by a stage is not in the table.
	ErrMissingColumn = errors.New("missing column")

	// ErrValidation indicates invalid configuration or input.
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates a requested key or identity is unknown.
	ErrNotFound = errors.New("not found")
)

// UnsupportedFormatError is returned when an input or output file extension
// is not recognized.
type UnsupportedFormatError struct {
	Path      string
	Extension string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Extension == "" {
		return fmt.Sprintf("unsupported file format: %s has no extension", e.Path)
	}
	return fmt.Sprintf("unsupported file format %q: %s", e.Extension, e.Path)
}

// UnknownCategoryError is returned when a categorical value is neither an
// observed category nor the sentinel.
type UnknownCategoryError struct {
	Column string
	Value  string
	Row    int
}

func (e *UnknownCategoryError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("unknown category %q", e.Value)
	}
	return fmt.Sprintf("unknown category %q in column %s (row %d)", e.Value, e.Column, e.Row)
}

// ConfigLoadError is returned when a persisted configuration artifact
// (pipeline config, column mapping, identity map) cannot be parsed.
type ConfigLoadError struct {
	Path  string
	Cause error
}

func (e *ConfigLoadError) Error() string {
	return fmt.Sprintf("loading %s: %v", e.Path, e.Cause)
}

func (e *ConfigLoadError) Unwrap() error {
	return e.Cause
}

// MissingColumn wraps ErrMissingColumn with the column name.
func MissingColumn(column string) error {
	return fmt.Errorf("%w: %s", ErrMissingColumn, column)
}

// IsMissingColumn reports whether any error in err's chain is ErrMissingColumn.
func IsMissingColumn(err error) bool {
	return errors.Is(err, ErrMissingColumn)
}

// IsValidation reports whether any error in err's chain is ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnsupportedFormat reports whether err's chain contains an UnsupportedFormatError.
func IsUnsupportedFormat(err error) bool {
	var target *UnsupportedFormatError
	return errors.As(err, &target)
}

// IsUnknownCategory reports whether err's chain contains an UnknownCategoryError.
func IsUnknownCategory(err error) bool {
	var target *UnknownCategoryError
	return errors.As(err, &target)
}

// IsConfigLoad reports whether err's chain contains a ConfigLoadError.
func IsConfigLoad(err error) bool {
	var target *ConfigLoadError
	return errors.As(err, &target)
}
