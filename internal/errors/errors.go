package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors used to classify failures across the engine. Errors are
// built with NewError/WithError and terminally marked with one of these via
// Mark; callers branch with the Is* predicates instead of string matching.
var (
	ErrValidation          = errors.New("validation_error")
	ErrNotFound            = errors.New("not_found")
	ErrAlreadyExists       = errors.New("already_exists")
	ErrDatabase            = errors.New("database_error")
	ErrInternal            = errors.New("internal_error")
	ErrSystem              = errors.New("system_error")
	ErrInvalidOperation    = errors.New("invalid_operation")
	ErrPermissionDenied    = errors.New("permission_denied")
	ErrHTTPClient          = errors.New("http_client_error")
	ErrIntegration         = errors.New("integration_error")
	ErrInsufficientBalance = errors.New("insufficient_balance")
)

// InternalError is the error type carried through the engine. It wraps an
// optional cause, a human hint and structured details, and is marked with
// exactly one sentinel for classification.
type InternalError struct {
	message string
	cause   error
	mark    error
	hint    string
	details map[string]interface{}
}

func (e *InternalError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *InternalError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	if e.mark != nil {
		errs = append(errs, e.mark)
	}
	return errs
}

// Hint returns the human readable hint attached to the error, if any.
func (e *InternalError) Hint() string {
	return e.hint
}

// Details returns the reportable details attached to the error, if any.
func (e *InternalError) Details() map[string]interface{} {
	return e.details
}

// Builder provides the fluent construction API. Mark finalizes the builder
// and returns the error.
type Builder struct {
	err *InternalError
}

// NewError starts building an error with the given message.
func NewError(message string) *Builder {
	return &Builder{err: &InternalError{message: message}}
}

// NewErrorf starts building an error with a formatted message.
func NewErrorf(format string, args ...interface{}) *Builder {
	return &Builder{err: &InternalError{message: fmt.Sprintf(format, args...)}}
}

// WithError starts building an error that wraps an existing cause.
func WithError(cause error) *Builder {
	return &Builder{err: &InternalError{message: "error occurred", cause: cause}}
}

// WithHint attaches a human readable hint for logs and user-facing surfaces.
func (b *Builder) WithHint(hint string) *Builder {
	b.err.hint = hint
	return b
}

// WithHintf attaches a formatted hint.
func (b *Builder) WithHintf(format string, args ...interface{}) *Builder {
	b.err.hint = fmt.Sprintf(format, args...)
	return b
}

// WithReportableDetails attaches structured details safe to surface in logs.
func (b *Builder) WithReportableDetails(details map[string]interface{}) *Builder {
	b.err.details = details
	return b
}

// WithMessage overrides the base message (useful with WithError).
func (b *Builder) WithMessage(message string) *Builder {
	b.err.message = message
	return b
}

// Mark classifies the error with a sentinel and returns it.
func (b *Builder) Mark(sentinel error) error {
	b.err.mark = sentinel
	return b.err
}

// IsNotFound reports whether err is marked as a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err is marked as a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsAlreadyExists reports whether err is marked as an already-exists error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsInsufficientBalance reports whether err is a terminal ledger decline for
// lack of funds, as opposed to an ambiguous ledger failure.
func IsInsufficientBalance(err error) bool {
	return errors.Is(err, ErrInsufficientBalance)
}
