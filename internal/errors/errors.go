package errors

import (
	stderrors "errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

type ErrorType string

const (
	ErrTypeInvalidState      ErrorType = "INVALID_STATE"
	ErrTypeInvalidTransition ErrorType = "INVALID_TRANSITION"
	ErrTypeConflictingState  ErrorType = "CONFLICTING_STATE"
	ErrTypeStaleState        ErrorType = "STALE_STATE"
	ErrTypeIncompleteJobData ErrorType = "INCOMPLETE_JOB_DATA"
	ErrTypeInvalidAmount     ErrorType = "INVALID_AMOUNT"
	ErrTypeInvalidInput      ErrorType = "INVALID_INPUT"
	ErrTypeNotFound          ErrorType = "NOT_FOUND"
)

// DomainError is returned by every engine operation that rejects its input.
// Lifecycle errors are always local: the entity is left untouched.
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Stack   []byte
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func (e *DomainError) StackTrace() []byte {
	return e.Stack
}

// Retryable reports whether the caller may refetch and retry.
func (e *DomainError) Retryable() bool {
	return e.Type == ErrTypeStaleState
}

func New(errType ErrorType, message string, err error) *DomainError {
	var stack []byte
	if err != nil {
		if stackErr, ok := err.(*goerrors.Error); ok {
			stack = stackErr.Stack()
		} else {
			stack = goerrors.Wrap(err, 2).Stack()
		}
	} else {
		stack = goerrors.New(message).Stack()
	}

	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Stack:   stack,
	}
}

func InvalidState(format string, args ...interface{}) *DomainError {
	return New(ErrTypeInvalidState, fmt.Sprintf(format, args...), nil)
}

func InvalidTransition(format string, args ...interface{}) *DomainError {
	return New(ErrTypeInvalidTransition, fmt.Sprintf(format, args...), nil)
}

func ConflictingState(format string, args ...interface{}) *DomainError {
	return New(ErrTypeConflictingState, fmt.Sprintf(format, args...), nil)
}

func StaleState(format string, args ...interface{}) *DomainError {
	return New(ErrTypeStaleState, fmt.Sprintf(format, args...), nil)
}

func IncompleteJobData(format string, args ...interface{}) *DomainError {
	return New(ErrTypeIncompleteJobData, fmt.Sprintf(format, args...), nil)
}

func InvalidAmount(format string, args ...interface{}) *DomainError {
	return New(ErrTypeInvalidAmount, fmt.Sprintf(format, args...), nil)
}

func InvalidInput(format string, args ...interface{}) *DomainError {
	return New(ErrTypeInvalidInput, fmt.Sprintf(format, args...), nil)
}

func NotFound(format string, args ...interface{}) *DomainError {
	return New(ErrTypeNotFound, fmt.Sprintf(format, args...), nil)
}

// TypeOf returns the ErrorType of the first DomainError in err's chain, or "".
func TypeOf(err error) ErrorType {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de.Type
	}
	return ""
}

// Is reports whether err carries a DomainError of the given type.
func Is(err error, errType ErrorType) bool {
	return err != nil && TypeOf(err) == errType
}
