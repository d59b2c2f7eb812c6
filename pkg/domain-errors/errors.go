// Package domainerrors defines coded errors shared by the ledger node, the wallet and the agent.
//
// Services return these instead of raw errors so transports (HTTP handlers, NACK replies,
// signed agent error envelopes) can translate them without inspecting messages.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies the kind of failure.
type Code string

const (
	// Malformed requests.
	CodeBadRequest   Code = "bad_request"
	CodeValidation   Code = "validation_error"
	CodeInvalidInput Code = "invalid_input"

	// Policy violations: well formed but disallowed.
	CodeUnauthorized     Code = "unauthorized"
	CodeConflict         Code = "conflict"
	CodeClaimUnavailable Code = "claim_unavailable"

	// Signature and session failures.
	CodeInvalidSignature Code = "invalid_signature"
	CodeUnknownLink      Code = "unknown_link"
	CodeProtocol         Code = "protocol_error"

	// State not yet propagated; callers may retry.
	CodeNotFound        Code = "not_found"
	CodeNotYetAvailable Code = "not_yet_available"
	CodeTimeout         Code = "timeout"

	// Infrastructure.
	CodeInternal           Code = "internal_error"
	CodeInvariantViolation Code = "invariant_violation"
)

// Category groups codes into the rejection taxonomy.
type Category string

const (
	CategoryMalformed       Category = "malformed"
	CategoryPolicy          Category = "policy"
	CategorySession         Category = "session"
	CategoryNotYetAvailable Category = "not_yet_available"
	CategoryInfrastructure  Category = "infrastructure"
)

var categories = map[Code]Category{
	CodeBadRequest:         CategoryMalformed,
	CodeValidation:         CategoryMalformed,
	CodeInvalidInput:       CategoryMalformed,
	CodeUnauthorized:       CategoryPolicy,
	CodeConflict:           CategoryPolicy,
	CodeClaimUnavailable:   CategoryPolicy,
	CodeInvalidSignature:   CategorySession,
	CodeUnknownLink:        CategorySession,
	CodeProtocol:           CategorySession,
	CodeNotFound:           CategoryNotYetAvailable,
	CodeNotYetAvailable:    CategoryNotYetAvailable,
	CodeTimeout:            CategoryNotYetAvailable,
	CodeInternal:           CategoryInfrastructure,
	CodeInvariantViolation: CategoryInfrastructure,
}

// Category returns the taxonomy bucket for the code. Unknown codes are infrastructure failures.
func (c Code) Category() Category {
	if cat, ok := categories[c]; ok {
		return cat
	}
	return CategoryInfrastructure
}

// Retryable reports whether a caller may retry the same request later.
func (c Code) Retryable() bool {
	return c.Category() == CategoryNotYetAvailable
}

// Error is a coded domain error. Fields names the offending request fields, when any.
type Error struct {
	Code    Code
	Message string
	Fields  []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithFields returns a copy of the error annotated with the offending fields.
func (e *Error) WithFields(fields ...string) *Error {
	cp := *e
	cp.Fields = append(append([]string{}, e.Fields...), fields...)
	return &cp
}

// New creates a coded error.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the code of the outermost domain error in the chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost domain error in the chain carries code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// FieldsOf returns the offending fields attached to err, if any.
func FieldsOf(err error) []string {
	var de *Error
	if errors.As(err, &de) {
		return de.Fields
	}
	return nil
}

// MessageOf returns the client-safe message of a domain error. Internal errors never leak detail.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Code.Category() != CategoryInfrastructure {
		return de.Message
	}
	return "internal error"
}
