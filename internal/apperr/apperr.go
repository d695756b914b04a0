// Package apperr defines the error categories the recorder surfaces to its callers.
package apperr

import (
	"errors"
	"fmt"
)

// Code classifies an error by how the caller is expected to react to it.
type Code string

const (
	// CodeConfiguration is fatal at startup, before any UI or audio initialization.
	CodeConfiguration Code = "CONFIGURATION"
	// CodeIO covers corpus, audio file and metadata log failures. Never retried automatically.
	CodeIO Code = "IO"
	// CodeDevice is fatal to the current recording.
	CodeDevice Code = "DEVICE"
	// CodeInvalidState means an operation was called in the wrong session state.
	CodeInvalidState Code = "INVALID_STATE"
)

// Error is the error type shared by all recorder packages
type Error struct {
	Code    Code
	Op      string // operation name, ex: "Session.Persist"
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch {
	case e.Op != "" && e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Op != "" && e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Code) + " error"
	}
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error.
func E(code Code, op, msg string, err error) error {
	return &Error{Code: code, Op: op, Message: msg, Err: err}
}

// IsCode reports whether any error in err's chain carries code.
func IsCode(err error, code Code) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// CodeOf returns the code of the first *Error in err's chain, or "" if there is none.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
