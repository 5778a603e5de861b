package zetro

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrorCode represents a machine-readable error code.
type ErrorCode string

const (
	CodeInvalidArgument   ErrorCode = "invalid_argument"
	CodeUnauthenticated   ErrorCode = "unauthenticated"
	CodePermissionDenied  ErrorCode = "permission_denied"
	CodeNotFound          ErrorCode = "not_found"
	CodeConflict          ErrorCode = "conflict"
	CodeResourceExhausted ErrorCode = "resource_exhausted"
	CodeCanceled          ErrorCode = "canceled"
	CodeInternal          ErrorCode = "internal"
	CodeNotImplemented    ErrorCode = "not_implemented"
	CodeUnavailable       ErrorCode = "unavailable"
	CodeDeadlineExceeded  ErrorCode = "deadline_exceeded"

	// CodeSchemaMismatch is answered when a request's schema fingerprint
	// does not match the table the server was built with. It is the loud
	// failure that replaces silently misread positional payloads.
	CodeSchemaMismatch ErrorCode = "schema_mismatch"
)

// Error is the standard error envelope carried in a response's top-level
// error descriptor.
type Error struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates a new service error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Errorf creates a new service error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithDetail returns a new Error with the key-value pair added to details.
func (e *Error) WithDetail(key string, value any) *Error {
	details := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
	}
}

// ErrorTransformer is a function that maps an application error to a service
// error. If it returns nil, the default transformer logic is applied.
type ErrorTransformer func(error) *Error

// DefaultErrorTransformer maps standard Go errors to service errors.
func DefaultErrorTransformer(err error) *Error {
	if err == nil {
		return nil
	}

	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}

	var decErr *DecodeError
	if errors.As(err, &decErr) {
		return NewError(CodeInvalidArgument, decErr.Error()).
			WithDetail("kind", decErr.Kind.String())
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(CodeDeadlineExceeded, "request timeout")
	}

	if errors.Is(err, context.Canceled) {
		return NewError(CodeCanceled, "context canceled")
	}

	var valErrs validator.ValidationErrors
	if errors.As(err, &valErrs) {
		details := make(map[string]any)
		messages := make([]string, 0, len(valErrs))
		for _, ve := range valErrs {
			msg := formatValidationError(ve)
			details[ve.Field()] = msg
			messages = append(messages, ve.Field()+": "+msg)
		}
		return &Error{
			Code:    CodeInvalidArgument,
			Message: strings.Join(messages, "; "),
			Details: details,
		}
	}

	// Multi-errors (errors.Join): map the first, keep all messages.
	if u, ok := err.(interface{ Unwrap() []error }); ok {
		errs := u.Unwrap()
		if len(errs) > 0 {
			firstMapped := DefaultErrorTransformer(errs[0])
			msgs := make([]string, len(errs))
			for i, e := range errs {
				msgs[i] = e.Error()
			}
			return &Error{
				Code:    firstMapped.Code,
				Message: strings.Join(msgs, "; "),
				Details: firstMapped.Details,
			}
		}
	}

	return NewError(CodeInternal, err.Error())
}

// WireCode maps an ErrorCode to the integer carried in the wire error
// descriptor. The values follow HTTP status conventions so a reader can
// interpret them without the table, but they travel in the body; protocol
// errors still answer HTTP 200.
func (c ErrorCode) WireCode() int64 {
	switch c {
	case CodeInvalidArgument:
		return 400
	case CodeUnauthenticated:
		return 401
	case CodePermissionDenied:
		return 403
	case CodeNotFound:
		return 404
	case CodeConflict:
		return 409
	case CodeSchemaMismatch:
		return 412
	case CodeResourceExhausted:
		return 429
	case CodeCanceled:
		return 499 // Client Closed Request (Nginx standard)
	case CodeInternal:
		return 500
	case CodeNotImplemented:
		return 501
	case CodeUnavailable:
		return 503
	case CodeDeadlineExceeded:
		return 504
	default:
		return 500
	}
}

// codeFromWire is the inverse of WireCode, used by the client to rebuild an
// Error from a wire descriptor. Unknown codes map to internal.
func codeFromWire(code int64) ErrorCode {
	switch code {
	case 400:
		return CodeInvalidArgument
	case 401:
		return CodeUnauthenticated
	case 403:
		return CodePermissionDenied
	case 404:
		return CodeNotFound
	case 409:
		return CodeConflict
	case 412:
		return CodeSchemaMismatch
	case 429:
		return CodeResourceExhausted
	case 499:
		return CodeCanceled
	case 500:
		return CodeInternal
	case 501:
		return CodeNotImplemented
	case 503:
		return CodeUnavailable
	case 504:
		return CodeDeadlineExceeded
	default:
		return CodeInternal
	}
}

// formatValidationError converts a validator.FieldError to a human-readable message.
func formatValidationError(ve validator.FieldError) string {
	switch ve.Tag() {
	case "required":
		return "required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", ve.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", ve.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", ve.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", ve.Param())
	case "lt":
		return fmt.Sprintf("must be less than %s", ve.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", ve.Param())
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", ve.Param())
	default:
		if ve.Param() != "" {
			return fmt.Sprintf("failed %s=%s validation", ve.Tag(), ve.Param())
		}
		return fmt.Sprintf("failed %s validation", ve.Tag())
	}
}

// DecodeKind classifies a positional decode failure. The set is closed: a
// corrupted positional stream cannot be resynchronized locally, so every
// mismatch is a hard, typed failure and never a coercion.
type DecodeKind uint8

const (
	// ArityMismatch: a struct sequence has a different length than the
	// struct's canonical field count.
	ArityMismatch DecodeKind = iota + 1
	// InvalidDiscriminant: an enum discriminant is negative or at least
	// the variant count.
	InvalidDiscriminant
	// TypeMismatch: a scalar wire value has the wrong primitive kind for
	// the expected scalar type; numeric overflow and lost fractions are
	// the same failure.
	TypeMismatch
	// UnexpectedNull: null at a non-optional position.
	UnexpectedNull
)

func (k DecodeKind) String() string {
	switch k {
	case ArityMismatch:
		return "arity mismatch"
	case InvalidDiscriminant:
		return "invalid discriminant"
	case TypeMismatch:
		return "type mismatch"
	case UnexpectedNull:
		return "unexpected null"
	default:
		return "unknown"
	}
}

// DecodeError reports a positional decode failure at a specific position in
// the value tree. It is recoverable per call: the dispatch boundary turns it
// into a structured error response, never a crash, and never a fallback to a
// default value.
type DecodeError struct {
	Kind   DecodeKind
	Path   string // position in the value tree, e.g. "Chatroom.messages[2].author"
	Detail string
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("decode: %s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("decode at %s: %s: %s", e.Path, e.Kind, e.Detail)
}

func decodeErrf(kind DecodeKind, format string, args ...any) *DecodeError {
	return &DecodeError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// EncodeError reports a value that cannot be represented on the wire, such as
// an enum ordinal outside the variant range.
type EncodeError struct {
	Path   string
	Detail string
}

func (e *EncodeError) Error() string {
	if e.Path == "" {
		return "encode: " + e.Detail
	}
	return fmt.Sprintf("encode at %s: %s", e.Path, e.Detail)
}

func encodeErrf(format string, args ...any) *EncodeError {
	return &EncodeError{Detail: fmt.Sprintf(format, args...)}
}

// prefixPath prepends a path segment to Decode/Encode errors as they bubble
// up the value tree, so the final error names the exact offending position.
func prefixPath(err error, seg string) error {
	switch e := err.(type) {
	case *DecodeError:
		return &DecodeError{Kind: e.Kind, Path: joinPath(seg, e.Path), Detail: e.Detail}
	case *EncodeError:
		return &EncodeError{Path: joinPath(seg, e.Path), Detail: e.Detail}
	default:
		return err
	}
}

func joinPath(seg, rest string) string {
	if rest == "" {
		return seg
	}
	if strings.HasPrefix(rest, "[") {
		return seg + rest
	}
	return seg + "." + rest
}
