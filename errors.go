package forumwatch

import (
	"errors"
	"fmt"
)

// Error represents a forumwatch error with categorization.
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error (if any)
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Error codes for forumwatch operations.
const (
	// ErrCodeNoData indicates no data was found.
	ErrCodeNoData = "NO_DATA"

	// ErrCodeValidation indicates validation failed.
	ErrCodeValidation = "VALIDATION_ERROR"

	// ErrCodeConfiguration indicates invalid configuration.
	ErrCodeConfiguration = "CONFIGURATION_ERROR"

	// ErrCodeDatabase indicates a store operation failed.
	// Fatal to the current topic only.
	ErrCodeDatabase = "DATABASE_ERROR"

	// ErrCodeFetch indicates a transport or HTTP failure.
	// Fatal to the scan or resolution attempt it occurred in.
	ErrCodeFetch = "FETCH_ERROR"

	// ErrCodeParse indicates page markup did not have the expected shape,
	// usually an upstream layout change.
	ErrCodeParse = "PARSE_ERROR"

	// ErrCodeNotify indicates the notification channel rejected a message.
	// Recoverable: the topic stays unposted and is retried on the next scan.
	ErrCodeNotify = "NOTIFY_ERROR"
)

// Common errors.
var (
	// ErrNoData is returned when a query returns no results.
	ErrNoData = &Error{
		Code:    ErrCodeNoData,
		Message: "no data found",
	}

	// ErrCreatedMissing is returned when a topic page carries no creation field.
	ErrCreatedMissing = &Error{
		Code:    ErrCodeParse,
		Message: "topic page has no creation time",
	}
)

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error wrapping an underlying error.
func NewErrorWithCause(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// IsNoData checks if an error is ErrNoData.
func IsNoData(err error) bool {
	return HasCode(err, ErrCodeNoData)
}

// HasCode reports whether any *Error in err's chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		var fwErr *Error
		if !errors.As(err, &fwErr) {
			return false
		}
		if fwErr.Code == code {
			return true
		}
		err = fwErr.Err
	}
	return false
}

// CodeOf returns the code of the outermost *Error in err's chain,
// or an empty string when there is none.
func CodeOf(err error) string {
	var fwErr *Error
	if errors.As(err, &fwErr) {
		return fwErr.Code
	}
	return ""
}
