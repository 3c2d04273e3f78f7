// Package apierr defines the stable error taxonomy returned by the core
// engine and surfaced verbatim by the CLI and HTTP transport.
package apierr

import (
	"errors"
	"fmt"
)

// Code is a stable machine-checkable error identifier.
type Code string

const (
	CodeInvalidJSON          Code = "INVALID_JSON"
	CodeInvalidFixture       Code = "INVALID_FIXTURE"
	CodeInvalidTx            Code = "INVALID_TX"
	CodeInconsistentPrevouts Code = "INCONSISTENT_PREVOUTS"
	CodeInvalidBlock         Code = "INVALID_BLOCK"
	CodeMerkleMismatch       Code = "MERKLE_MISMATCH"
	CodeInvalidUndo          Code = "INVALID_UNDO"
	CodeInvalidCoinbase      Code = "INVALID_COINBASE"
	CodeInternal             Code = "INTERNAL"
)

// Error is a taxonomy-tagged error. It wraps an optional underlying cause
// so callers can still use errors.Is/As on it.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a tagged error from a literal message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a tagged error from a format string.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags an existing error with a code, preserving it as the cause.
func Wrap(code Code, err error) *Error {
	return &Error{Code: code, Message: err.Error(), cause: err}
}

// Wrapf tags an existing error with a code and a formatted message,
// preserving the original error as the cause for errors.Unwrap/Is/As.
func Wrapf(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

// As extracts an *Error from err, following the same convention as errors.As.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Envelope is the wire shape of a failure response (spec.md §6.5).
type Envelope struct {
	OK    bool      `json:"ok"`
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the code and human-readable message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope renders the error as the standard failure response body.
func (e *Error) Envelope() Envelope {
	return Envelope{
		OK: false,
		Error: ErrorBody{
			Code:    string(e.Code),
			Message: e.Message,
		},
	}
}

// AsEnvelope renders any error as a failure envelope, defaulting to
// CodeInternal when err does not carry a taxonomy code.
func AsEnvelope(err error) Envelope {
	if tagged, ok := As(err); ok {
		return tagged.Envelope()
	}
	return Envelope{
		OK: false,
		Error: ErrorBody{
			Code:    string(CodeInternal),
			Message: err.Error(),
		},
	}
}
