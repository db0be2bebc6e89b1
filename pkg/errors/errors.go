package errors

import (
	"errors"
	"fmt"
)

// Record-level failure codes. A record that fails with one of these is routed
// to the failure target instead of aborting its partition.
var (
	ErrMalformedEnvelope       = NewError("MALFORMED_ENVELOPE", "record value is not a valid envelope")
	ErrKeyResolution           = NewError("KEY_RESOLUTION_FAILED", "data key could not be resolved")
	ErrDecryption              = NewError("DECRYPTION_FAILED", "payload could not be decrypted")
	ErrMalformedPlaintext      = NewError("MALFORMED_PLAINTEXT", "decrypted payload is not a JSON object")
	ErrMissingAction           = NewError("MISSING_ACTION", "record has no recognised database action")
	ErrMissingIdentifier       = NewError("MISSING_IDENTIFIER", "record has no natural identifier")
	ErrNoTransformerConfigured = NewError("NO_TRANSFORMER_CONFIGURED", "no transformer configured for topic")
	ErrTransformation          = NewError("TRANSFORMATION_FAILED", "transformation failed")
)

// Infrastructure codes.
var (
	ErrKeyServiceUnavailable = NewError("KEY_SERVICE_UNAVAILABLE", "key service unavailable")
	ErrTargetUnavailable     = NewError("TARGET_UNAVAILABLE", "target unavailable")
	ErrValidation            = NewError("VALIDATION_ERROR", "validation failed")
	ErrInternal              = NewError("INTERNAL_ERROR", "internal error")
)

type RetryableError interface {
	error
	IsRetryable() bool
}

type FatalError interface {
	error
	IsFatal() bool
}

type Error struct {
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	retryable *bool
}

func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

func (e *Error) Error() string {
	msg := e.Message
	if detailMsg, ok := e.Details["message"].(string); ok && detailMsg != "" {
		msg = detailMsg
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Code so that errors.Is(err, ErrDecryption) holds for any
// derived copy carrying a cause or details.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func (e *Error) IsRetryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	if e.Cause != nil {
		var retryableErr RetryableError
		if errors.As(e.Cause, &retryableErr) {
			return retryableErr.IsRetryable()
		}
	}
	return e.Code == ErrKeyServiceUnavailable.Code || e.Code == ErrTargetUnavailable.Code
}

func (e *Error) IsFatal() bool {
	return !e.IsRetryable()
}

func (e *Error) WithCause(cause error) *Error {
	err := e.clone()
	err.Cause = cause
	return err
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := e.clone()
	err.Details[key] = value
	return err
}

// WithMessage replaces the generic message with a record specific one.
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	return e.WithDetail("message", fmt.Sprintf(format, args...))
}

func (e *Error) AsRetryable() *Error {
	err := e.clone()
	retryable := true
	err.retryable = &retryable
	return err
}

func (e *Error) AsFatal() *Error {
	err := e.clone()
	retryable := false
	err.retryable = &retryable
	return err
}

func (e *Error) clone() *Error {
	err := *e
	err.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		err.Details[k] = v
	}
	return &err
}

func Wrap(err error, appErr *Error) *Error {
	if err == nil {
		return nil
	}
	return appErr.WithCause(err)
}

// Code returns the code of the first *Error in the chain, or "" if none.
func Code(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
