// Package apperr defines the error kinds surfaced by the prompt and run services.
//
// Every failure leaving a service is an *Error carrying a stable Kind, an
// optional Reason and a human readable message. The underlying cause, when
// there is one, is kept behind Unwrap with a stack attached so it can be
// logged, but it never becomes part of Error().
package apperr

import (
	"fmt"
	"io"

	crdb "github.com/cockroachdb/errors"
)

type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindValidation        Kind = "validation_failure"
	KindProviderNotReady  Kind = "provider_not_ready"
	KindTransientConflict Kind = "transient_conflict"
	KindExecution         Kind = "execution_failure"
	KindInternal          Kind = "internal"
)

// Reason narrows a validation failure.
type Reason string

const (
	ReasonInvalidVariableName       Reason = "InvalidVariableName"
	ReasonUndefinedVariable         Reason = "UndefinedVariable"
	ReasonMixedVariableTypes        Reason = "MixedVariableTypes"
	ReasonPublishRequirementsNotMet Reason = "PublishRequirementsNotMet"
	ReasonInvalidStatusTransition   Reason = "InvalidStatusTransition"
	ReasonMissingRequiredVariable   Reason = "MissingRequiredVariable"
	ReasonInvalidStructuredOutput   Reason = "InvalidStructuredOutput"
	ReasonInvalidRequest            Reason = "InvalidRequest"
	ReasonInvalidImage              Reason = "InvalidImage"
	ReasonNoDefaultProvider         Reason = "NoDefaultProviderConfigured"
	ReasonNoMultimodalModel         Reason = "NoMultimodalModelConfigured"
)

type Error struct {
	Kind    Kind
	Reason  Reason
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return string(e.Reason) + ": " + e.Message
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Cause returns the wrapped error, if any. Use "%+v" on it to get the stack.
func (e *Error) Cause() error { return e.cause }

// Format prints the cause and its stack under %+v.
func (e *Error) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') && e.cause != nil {
		fmt.Fprintf(s, "%s: %+v", e.Error(), e.cause)
		return
	}
	io.WriteString(s, e.Error())
}

func newf(kind Kind, reason Reason, cause error, format string, args ...any) *Error {
	e := &Error{Kind: kind, Reason: reason, Message: fmt.Sprintf(format, args...)}
	if cause != nil {
		e.cause = crdb.WithStack(cause)
	}
	return e
}

func NotFound(format string, args ...any) error {
	return newf(KindNotFound, "", nil, format, args...)
}

func Validation(reason Reason, format string, args ...any) error {
	return newf(KindValidation, reason, nil, format, args...)
}

// ValidationCause is Validation with an underlying cause kept for logs.
func ValidationCause(reason Reason, cause error, format string, args ...any) error {
	return newf(KindValidation, reason, cause, format, args...)
}

func ProviderNotReady(cause error, format string, args ...any) error {
	return newf(KindProviderNotReady, "", cause, format, args...)
}

func Conflict(cause error, format string, args ...any) error {
	return newf(KindTransientConflict, "", cause, format, args...)
}

func Execution(cause error, format string, args ...any) error {
	return newf(KindExecution, "", cause, format, args...)
}

func Internal(cause error, format string, args ...any) error {
	return newf(KindInternal, "", cause, format, args...)
}

// KindOf reports the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if crdb.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf reports the validation reason of err, or "" if none.
func ReasonOf(err error) Reason {
	var e *Error
	if crdb.As(err, &e) {
		return e.Reason
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func HasReason(err error, reason Reason) bool {
	return err != nil && ReasonOf(err) == reason
}
