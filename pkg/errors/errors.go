package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindTransient Kind = "TRANSIENT" // network/browser failure, worth retrying
	KindMalformed Kind = "MALFORMED" // model output that could not be parsed
	KindInput     Kind = "INPUT"     // missing or invalid input file / record
	KindConfig    Kind = "CONFIG"    // missing configuration, fatal at startup
)

type PipelineError struct {
	Kind    Kind
	Op      string
	Message string
	Context map[string]any
	Cause   error
}

func (e *PipelineError) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

func (e *PipelineError) WithCause(cause error) *PipelineError {
	e.Cause = cause
	return e
}

func (e *PipelineError) WithContext(key string, value any) *PipelineError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func newError(kind Kind, op, message string, cause error) *PipelineError {
	return &PipelineError{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   cause,
	}
}

func NewTransientError(op, message string, cause error) *PipelineError {
	return newError(KindTransient, op, message, cause)
}

func NewMalformedError(op, message string, cause error) *PipelineError {
	return newError(KindMalformed, op, message, cause)
}

func NewInputError(op, message string, cause error) *PipelineError {
	return newError(KindInput, op, message, cause)
}

func NewConfigError(message string) *PipelineError {
	return newError(KindConfig, "config", message, nil)
}

// APIError carries the HTTP status of a failed upstream call.
type APIError struct {
	*PipelineError
	StatusCode int
}

func NewAPIError(op string, statusCode int, body string) *APIError {
	kind := KindTransient
	if statusCode >= 400 && statusCode < 500 && statusCode != 429 {
		kind = KindInput
	}
	return &APIError{
		PipelineError: &PipelineError{
			Kind:    kind,
			Op:      op,
			Message: fmt.Sprintf("unexpected status code: %d", statusCode),
			Context: map[string]any{
				"status": statusCode,
				"body":   body,
			},
		},
		StatusCode: statusCode,
	}
}

type ValidationError struct {
	*PipelineError
	Field string
	Value any
}

func NewValidationError(message, field string, value any) *ValidationError {
	return &ValidationError{
		PipelineError: &PipelineError{
			Kind:    KindInput,
			Op:      "validate",
			Message: message,
			Context: map[string]any{
				"field": field,
				"value": value,
			},
		},
		Field: field,
		Value: value,
	}
}

type CacheError struct {
	*PipelineError
	Operation string
	Key       string
}

func NewCacheError(message, operation, key string, cause error) *CacheError {
	return &CacheError{
		PipelineError: &PipelineError{
			Kind:    KindTransient,
			Op:      "cache." + operation,
			Message: message,
			Context: map[string]any{
				"operation": operation,
				"key":       key,
			},
			Cause: cause,
		},
		Operation: operation,
		Key:       key,
	}
}

// KindOf returns the Kind of the first PipelineError in err's chain, or "" if none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Kind
	}
	var api *APIError
	if stderrors.As(err, &api) {
		return api.Kind
	}
	var ve *ValidationError
	if stderrors.As(err, &ve) {
		return ve.Kind
	}
	var ce *CacheError
	if stderrors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

func IsTransient(err error) bool { return KindOf(err) == KindTransient }
func IsMalformed(err error) bool { return KindOf(err) == KindMalformed }
func IsInput(err error) bool     { return KindOf(err) == KindInput }
func IsConfig(err error) bool    { return KindOf(err) == KindConfig }
