// internal/types.go - Common types for internal packages
package internal

import (
	"errors"
	"time"
)

// StageStats summarises one pipeline stage run
type StageStats struct {
	Total     int64
	Succeeded int64
	Skipped   int64
	Failed    int64
	StartTime time.Time
	EndTime   time.Time
}

// Duration returns the elapsed time of the stage
func (s *StageStats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Throughput returns processed items per second
func (s *StageStats) Throughput() float64 {
	secs := s.Duration().Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.Succeeded+s.Skipped+s.Failed) / secs
}

// Error represents application-specific errors
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes the underlying cause to errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new application error
func NewError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// HasCode reports whether any error in err's chain is an *Error with the given code
func HasCode(err error, code string) bool {
	for err != nil {
		var appErr *Error
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// ErrorCode constants for common error types
const (
	ErrorCodeSourceRead     = "SOURCE_READ_ERROR"
	ErrorCodeMosaicBuild    = "MOSAIC_BUILD_ERROR"
	ErrorCodeInvalidZoom    = "INVALID_ZOOM_ERROR"
	ErrorCodeTileWrite      = "TILE_WRITE_ERROR"
	ErrorCodeNoIntersection = "NO_INTERSECTING_IMAGERY"
	ErrorCodeConfig         = "CONFIG_ERROR"
	ErrorCodeValidation     = "VALIDATION_ERROR"
	ErrorCodeStorage        = "STORAGE_ERROR"
	ErrorCodeNotFound       = "NOT_FOUND"
	ErrorCodeSubmit         = "SUBMIT_ERROR"
)
