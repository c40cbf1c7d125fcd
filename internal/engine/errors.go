package engine

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes engine failures.
type ErrorCode string

const (
	// ErrCodeNoPrimary indicates no provider supplied the primary input.
	ErrCodeNoPrimary ErrorCode = "NO_PRIMARY"

	// ErrCodeFileNotFound indicates an \input or \include target is missing.
	ErrCodeFileNotFound ErrorCode = "FILE_NOT_FOUND"

	// ErrCodeDepthExceeded indicates inputs nested beyond the limit,
	// usually a file that inputs itself.
	ErrCodeDepthExceeded ErrorCode = "DEPTH_EXCEEDED"

	// ErrCodeIO indicates a provider failed while the engine used a file.
	ErrCodeIO ErrorCode = "IO"
)

// Error is a failure of one pass, located at a file and line when known.
type Error struct {
	Code    ErrorCode
	Message string
	File    string
	Line    int
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.File != "" {
		msg = fmt.Sprintf("%s:%d: %s", e.File, e.Line, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the provider error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsFileNotFound returns true if the error is a missing-input error.
// Uses errors.As to handle wrapped errors.
func IsFileNotFound(err error) bool {
	return hasCode(err, ErrCodeFileNotFound)
}

// IsDepthExceeded returns true if the error is a nesting-limit error.
func IsDepthExceeded(err error) bool {
	return hasCode(err, ErrCodeDepthExceeded)
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
