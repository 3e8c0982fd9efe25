package gateway

import (
	"context"
	"errors"
	"fmt"
)

// Code is a machine readable error kind.
type Code string

const (
	CodeModelUnavailable      Code = "MODEL_UNAVAILABLE"
	CodeSessionCreationFailed Code = "SESSION_CREATION_FAILED"
	CodePromptExecutionFailed Code = "PROMPT_EXECUTION_FAILED"
	CodeGatewayError          Code = "GATEWAY_ERROR"
	CodeAvailabilityTimeout   Code = "AVAILABILITY_TIMEOUT"
)

// Error is the common type of every failure reported by the gateway.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels below by code, so callers can write
// errors.Is(err, gateway.ErrModelUnavailable).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Code == e.Code
}

var (
	ErrModelUnavailable    = &Error{Code: CodeModelUnavailable}
	ErrSessionCreation     = &Error{Code: CodeSessionCreationFailed}
	ErrPromptExecution     = &Error{Code: CodePromptExecutionFailed}
	ErrGateway             = &Error{Code: CodeGatewayError}
	ErrAvailabilityTimeout = &Error{Code: CodeAvailabilityTimeout}
)

func newError(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// IsAbort reports whether err is the result of a cancellation rather than a
// failure. Aborts are a normal outcome and are never surfaced to the user.
func IsAbort(err error) bool {
	return errors.Is(err, context.Canceled)
}

// CodeOf returns the code of the gateway error in err's chain, or the empty
// code when there is none.
func CodeOf(err error) Code {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}
