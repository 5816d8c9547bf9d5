package acquire

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies acquisition failures so callers can render distinct
// remediation guidance per kind.
type ErrorKind string

const (
	KindEnvironment       ErrorKind = "environment"
	KindDependencyMissing ErrorKind = "dependency_missing"
	KindSourceAcquisition ErrorKind = "source_acquisition"
	KindBuild             ErrorKind = "build"
	KindDownload          ErrorKind = "download"
	KindBinaryNotFound    ErrorKind = "binary_not_found"
)

// Error is an acquisition failure carrying a human-readable cause chain.
type Error struct {
	Kind    ErrorKind
	Message string
	Missing []string
	Hints   []string
	Listing []string
	Err     error
}

// Error formats the failure for logs and the shell.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	msg := e.Message
	if len(e.Missing) > 0 {
		msg = fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Missing, ", "))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// AsError extracts an acquisition *Error from any error chain.
func AsError(err error) (*Error, bool) {
	var aErr *Error
	if errors.As(err, &aErr) {
		return aErr, true
	}
	return nil, false
}
