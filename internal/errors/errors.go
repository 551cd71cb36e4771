// Package errors provides unified error handling with structured error codes
// shared across the capture pipeline.
package errors

import (
	"errors"
	"fmt"
)

// Code classifies pipeline failures. No code is fatal to the poll loop;
// the engine maps each class to skip/degrade behavior.
type Code string

const (
	CodeUnknown             Code = "UNKNOWN"
	CodeSourceUnavailable   Code = "SOURCE_UNAVAILABLE"
	CodeCaptureTimeout      Code = "CAPTURE_TIMEOUT"
	CodeRecognitionFailed   Code = "RECOGNITION_FAILED"
	CodeOCRUnavailable      Code = "OCR_UNAVAILABLE"
	CodeOCRExtractFailed    Code = "OCR_EXTRACT_FAILED"
	CodeValidationFailed    Code = "VALIDATION_FAILED"
	CodeCalibrationFailed   Code = "CALIBRATION_FAILED"
	CodeBaselineNotFound    Code = "BASELINE_NOT_FOUND"
	CodeBaselineStoreFailed Code = "BASELINE_STORE_FAILED"
	CodeDriftDetected       Code = "DRIFT_DETECTED"
	CodeConfigInvalid       Code = "CONFIG_INVALID"
)

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// IsCode checks if an error has a specific error code, unwrapping as
// needed.
func IsCode(err error, code Code) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf extracts the code from an error, or CodeUnknown.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// IsRetryable returns true if the error is potentially retryable.
// Source and store hiccups are transient; recognition and validation
// failures are a property of the frame, so retrying the same input is useless.
func IsRetryable(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case CodeSourceUnavailable, CodeCaptureTimeout, CodeBaselineStoreFailed,
		CodeOCRUnavailable, CodeOCRExtractFailed:
		return true
	default:
		return false
	}
}
