// Package apperr defines the error types and process exit codes shared by
// the server and its sampling layer.
package apperr

import (
	"errors"
	"fmt"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitErrorGeneric = 1 // serve or bind failure
	ExitErrorConfig  = 4 // bad arguments or configuration
)

// Sampling sources reported in SamplingError.Source.
const (
	SourceMemory = "memory"
	SourceSwap   = "swap"
	SourceCPU    = "cpu"
	SourceGPU    = "gpu"
)

// StartupError is a fatal condition detected before the server starts
// accepting requests.
type StartupError struct {
	Message string
	Cause   error
	Code    int // exit code, ExitErrorConfig when zero
}

func (e *StartupError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *StartupError) Unwrap() error { return e.Cause }

// NewStartupError creates a configuration StartupError with a formatted
// message.
func NewStartupError(cause error, format string, a ...any) error {
	return &StartupError{Message: fmt.Sprintf(format, a...), Cause: cause}
}

// NewListenError reports a listener that could not be bound.
func NewListenError(addr string, cause error) error {
	return &StartupError{
		Message: fmt.Sprintf("failed to listen on %s", addr),
		Cause:   cause,
		Code:    ExitErrorGeneric,
	}
}

// SamplingError reports a failed read of one resource counter. It is scoped
// to a single snapshot and never terminates the process.
type SamplingError struct {
	Source string
	Err    error
}

func (e *SamplingError) Error() string {
	return fmt.Sprintf("failed to sample %s: %v", e.Source, e.Err)
}

func (e *SamplingError) Unwrap() error { return e.Err }

// NewSamplingError wraps err as a SamplingError for source.
func NewSamplingError(source string, err error) error {
	return &SamplingError{Source: source, Err: err}
}

// SourceOf returns the sampling source carried by err, or "" when err is not
// a SamplingError.
func SourceOf(err error) string {
	var se *SamplingError
	if errors.As(err, &se) {
		return se.Source
	}
	return ""
}

// ExitCode maps an error returned by the server entry point to a process
// exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var se *StartupError
	if errors.As(err, &se) {
		if se.Code != 0 {
			return se.Code
		}
		return ExitErrorConfig
	}
	return ExitErrorGeneric
}
