package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode represents a classified pipeline error.
type ErrorCode string

const (
	ErrCodeUnsupportedFormat ErrorCode = "unsupported_format"
	ErrCodeUnknownCategory   ErrorCode = "unknown_category"
	ErrCodeConfigLoad        ErrorCode = "config_load"
	ErrCodeMissingColumn     ErrorCode = "missing_column"
	ErrCodeValidation        ErrorCode = "validation"
	ErrCodeCancelled         ErrorCode = "context_cancelled"
	ErrCodeProcessing        ErrorCode = "processing_error"
)

// PipelineError is a structured error for a failed pipeline stage.
type PipelineError struct {
	Code    ErrorCode
	Stage   string
	Message string
	Cause   error
}

func (e *PipelineError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// ClassifyError inspects an error and returns a *PipelineError with the appropriate code.
// Errors that match no known type are classified as ErrCodeProcessing.
func ClassifyError(err error, stage string) *PipelineError {
	if err == nil {
		return nil
	}

	var existing *PipelineError
	if errors.As(err, &existing) {
		return existing
	}

	pe := &PipelineError{
		Stage:   stage,
		Message: err.Error(),
		Cause:   err,
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		pe.Code = ErrCodeCancelled
	case IsUnsupportedFormat(err):
		pe.Code = ErrCodeUnsupportedFormat
	case IsUnknownCategory(err):
		pe.Code = ErrCodeUnknownCategory
	case IsConfigLoad(err):
		pe.Code = ErrCodeConfigLoad
	case IsMissingColumn(err):
		pe.Code = ErrCodeMissingColumn
	case IsValidation(err):
		pe.Code = ErrCodeValidation
	default:
		pe.Code = ErrCodeProcessing
	}
	return pe
}

// CodeOf returns the error code of err, or an empty code for nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	return ClassifyError(err, "").Code
}
