package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMissingColumn(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"direct match", ErrMissingColumn, true},
		{"helper", MissingColumn("time1"), true},
		{"wrapped twice", fmt.Errorf("encode: %w", MissingColumn("time1")), true},
		{"different error", ErrValidation, false},
		{"nil error", nil, false},
		{"unrelated error", errors.New("something else"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMissingColumn(tt.err); got != tt.want {
				t.Errorf("IsMissingColumn() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTypedErrors(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  string
	}{
		{
			name:  "unsupported format",
			err:   &UnsupportedFormatError{Path: "data/responses.ods", Extension: ".ods"},
			check: IsUnsupportedFormat,
			want:  `unsupported file format ".ods": data/responses.ods`,
		},
		{
			name:  "unsupported format without extension",
			err:   &UnsupportedFormatError{Path: "responses"},
			check: IsUnsupportedFormat,
			want:  "unsupported file format: responses has no extension",
		},
		{
			name:  "unknown category",
			err:   &UnknownCategoryError{Column: "priority_topic1", Value: "Z", Row: 4},
			check: IsUnknownCategory,
			want:  `unknown category "Z" in column priority_topic1 (row 4)`,
		},
		{
			name:  "config load",
			err:   &ConfigLoadError{Path: "name_id_map.json", Cause: errors.New("unexpected EOF")},
			check: IsConfigLoad,
			want:  "loading name_id_map.json: unexpected EOF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
			if !tt.check(fmt.Errorf("wrapped: %w", tt.err)) {
				t.Errorf("check failed for wrapped %T", tt.err)
			}
			if tt.check(errors.New("other")) {
				t.Errorf("check matched unrelated error")
			}
		})
	}
}

func TestConfigLoadError_Unwrap(t *testing.T) {
	cause := errors.New("invalid character")
	err := &ConfigLoadError{Path: "x.json", Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("ConfigLoadError should unwrap to its cause")
	}
}
