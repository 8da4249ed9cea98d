package protocol

import (
	"errors"

	"github.com/nslaift/nslaift/internal/core/scene"
)

// Protocol errors
var (
	ErrMalformedCommand = errors.New("malformed command")
	ErrUnknownVerb      = errors.New("unknown verb")
	ErrExecutorClosed   = errors.New("executor is closed")
	ErrInternalError    = errors.New("internal error")
)

// ErrorCode is the one-byte status sent back for every command line.
type ErrorCode byte

const (
	ErrorCodeSuccess       ErrorCode = '0'
	ErrorCodeUnknownAction ErrorCode = '1'
	ErrorCodeBadParameters ErrorCode = '2'
	ErrorCodeNameTaken     ErrorCode = '3'
	ErrorCodeNotFound      ErrorCode = '4'
	ErrorCodeNotRenderable ErrorCode = '5'
	ErrorCodeBackend       ErrorCode = '6'
	ErrorCodeMalformed     ErrorCode = '7'
	ErrorCodeUnknownKind   ErrorCode = '8'
	ErrorCodeInternalError ErrorCode = '9'
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeSuccess:
		return "ok"
	case ErrorCodeUnknownAction:
		return "unknown action"
	case ErrorCodeBadParameters:
		return "bad parameters"
	case ErrorCodeNameTaken:
		return "name taken"
	case ErrorCodeNotFound:
		return "not found"
	case ErrorCodeNotRenderable:
		return "not renderable"
	case ErrorCodeBackend:
		return "backend failure"
	case ErrorCodeMalformed:
		return "malformed command"
	case ErrorCodeUnknownKind:
		return "unknown kind"
	default:
		return "internal error"
	}
}

// Error represents a failed command with its reply code.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func NewProtocolError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Checked in order; the first sentinel found in the chain wins.
var errorCodeMap = []struct {
	err  error
	code ErrorCode
}{
	{ErrMalformedCommand, ErrorCodeMalformed},
	{ErrUnknownVerb, ErrorCodeMalformed},
	{scene.ErrUnknownAction, ErrorCodeUnknownAction},
	{scene.ErrBadParameters, ErrorCodeBadParameters},
	{scene.ErrEmptyName, ErrorCodeNameTaken},
	{scene.ErrNameTaken, ErrorCodeNameTaken},
	{scene.ErrNotFound, ErrorCodeNotFound},
	{scene.ErrNotRenderable, ErrorCodeNotRenderable},
	{scene.ErrUnknownKind, ErrorCodeUnknownKind},
	{scene.ErrBackend, ErrorCodeBackend},
	{scene.ErrSingularTransform, ErrorCodeBackend},
}

// GetErrorCode returns the reply code for err.
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ErrorCodeSuccess
	}
	var protocolErr *Error
	if errors.As(err, &protocolErr) {
		return protocolErr.Code
	}
	for _, m := range errorCodeMap {
		if errors.Is(err, m.err) {
			return m.code
		}
	}
	return ErrorCodeInternalError
}

// WrapError attaches the reply code of err.
func WrapError(err error, message string) *Error {
	return NewProtocolError(GetErrorCode(err), message, err)
}
