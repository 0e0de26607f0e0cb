// Package mcperr defines the JSON-RPC error taxonomy shared by the
// transport, correlator, client, and control-plane layers.
package mcperr

import (
	"errors"
	"fmt"
)

// Code is a JSON-RPC 2.0 error code, either one of the standard reserved
// codes or one of the MCP-broker-specific extensions.
type Code int

const (
	ParseError                 Code = -32700
	InvalidRequest             Code = -32600
	MethodNotFound             Code = -32601
	InvalidParams              Code = -32602
	InternalError              Code = -32603
	ConnectionClosed           Code = -32000
	RequestTimeout             Code = -32001
	UnsupportedProtocolVersion Code = -32002
)

func (c Code) String() string {
	switch c {
	case ParseError:
		return "ParseError"
	case InvalidRequest:
		return "InvalidRequest"
	case MethodNotFound:
		return "MethodNotFound"
	case InvalidParams:
		return "InvalidParams"
	case InternalError:
		return "InternalError"
	case ConnectionClosed:
		return "ConnectionClosed"
	case RequestTimeout:
		return "RequestTimeout"
	case UnsupportedProtocolVersion:
		return "UnsupportedProtocolVersion"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Error is a classified JSON-RPC error. It is returned by the correlator,
// the client, and (wrapped) by control-plane handlers.
type Error struct {
	Code    Code
	Message string
	Data    any
}

func New(code Code, message string, data any) *Error {
	return &Error{Code: code, Message: message, Data: data}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// sentinels usable with errors.Is against a *Error of the matching code.
var (
	ErrParseError                 = &Error{Code: ParseError}
	ErrInvalidRequest             = &Error{Code: InvalidRequest}
	ErrMethodNotFound             = &Error{Code: MethodNotFound}
	ErrInvalidParams              = &Error{Code: InvalidParams}
	ErrInternalError              = &Error{Code: InternalError}
	ErrConnectionClosed           = &Error{Code: ConnectionClosed}
	ErrRequestTimeout             = &Error{Code: RequestTimeout}
	ErrUnsupportedProtocolVersion = &Error{Code: UnsupportedProtocolVersion}
)

// Is makes Error comparable via errors.Is by code alone, so callers can
// write errors.Is(err, mcperr.ErrRequestTimeout) without matching Message/Data.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// As reports whether err is (or wraps) an *Error, and if so extracts it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Wrap returns err itself when it is (or wraps) an *Error; any other error
// becomes a new InternalError carrying only err's message text (the
// original error is not kept as a cause).
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}
	return &Error{Code: InternalError, Message: err.Error()}
}
