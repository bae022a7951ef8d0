// ABOUTME: Standard JSON-RPC error codes and refactoring-specific application errors
// ABOUTME: Maps session, rope and edit failures onto error objects editors can branch on

package rpc

import (
	"context"
	"errors"

	"github.com/mauromedda/pyrefactor-go/internal/edit"
	"github.com/mauromedda/pyrefactor-go/internal/python"
	"github.com/mauromedda/pyrefactor-go/internal/refactor"
	"github.com/mauromedda/pyrefactor-go/internal/rope"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParse          = -32700
	ErrCodeInvalidReq     = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
)

// Custom application error codes.
const (
	ErrCodeServerUnavailable = -32001
	ErrCodeNoSession         = -32002
	ErrCodeStale             = -32003
	ErrCodeOverlap           = -32004
	ErrCodeTimeout           = -32005
	ErrCodeEnvironment       = -32006
)

// NewParseError returns an Error for malformed JSON input.
func NewParseError(msg string) *Error {
	return &Error{Code: ErrCodeParse, Message: msg}
}

// NewMethodNotFoundError returns an Error for an unknown RPC method.
func NewMethodNotFoundError(method string) *Error {
	return &Error{Code: ErrCodeMethodNotFound, Message: "method not found: " + method}
}

// NewInvalidParamsError returns an Error for invalid method parameters.
func NewInvalidParamsError(msg string) *Error {
	return &Error{Code: ErrCodeInvalidParams, Message: msg}
}

// NewInternalError returns an Error for unexpected server-side failures.
func NewInternalError(msg string) *Error {
	return &Error{Code: ErrCodeInternal, Message: msg}
}

// NewNoSessionError returns an Error when initialize has not opened a session.
func NewNoSessionError() *Error {
	return &Error{Code: ErrCodeNoSession, Message: "no active session; call initialize first"}
}

// errorFor classifies err into an error object.
func errorFor(err error) *Error {
	var rpcErr *Error
	code := ErrCodeInternal
	switch {
	case errors.As(err, &rpcErr):
		return rpcErr
	case errors.Is(err, refactor.ErrNotStarted),
		errors.Is(err, rope.ErrStopped),
		errors.Is(err, rope.ErrProcessTerminated),
		errors.Is(err, rope.ErrSpawn),
		errors.Is(err, rope.ErrNotReady):
		code = ErrCodeServerUnavailable
	case errors.Is(err, edit.ErrStale):
		code = ErrCodeStale
	case errors.Is(err, edit.ErrOverlap):
		code = ErrCodeOverlap
	case errors.Is(err, context.DeadlineExceeded):
		code = ErrCodeTimeout
	case errors.Is(err, python.ErrNoInterpreter),
		errors.Is(err, python.ErrRopeMissing),
		errors.Is(err, python.ErrNoProject),
		errors.Is(err, python.ErrNoContainingProject),
		errors.Is(err, python.ErrNoFile):
		code = ErrCodeEnvironment
	}
	return &Error{Code: code, Message: err.Error()}
}
