package errors

import (
	"fmt"
)

// Category represents the type of error.
type Category string

const (
	CategoryConfig     Category = "config"
	CategoryConnection Category = "connection"
	CategoryProtocol   Category = "protocol"
	CategoryChange     Category = "change"
	CategoryTopic      Category = "topic"
	CategoryCLI        Category = "cli"
)

// TopicsyncError is a structured error with an explanation and a suggestion.
type TopicsyncError struct {
	// Code is a unique error identifier (e.g., "E001").
	Code string

	// Category is the error type (config, connection, etc.).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Example shows a correct invocation.
	Example string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *TopicsyncError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *TopicsyncError) Unwrap() error {
	return e.Wrapped
}

// WithSuggestion adds a fix suggestion to the error.
func (e *TopicsyncError) WithSuggestion(s string) *TopicsyncError {
	e.Suggestion = s
	return e
}

// WithExample adds an example to the error.
func (e *TopicsyncError) WithExample(ex string) *TopicsyncError {
	e.Example = ex
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *TopicsyncError) WithDetail(d string) *TopicsyncError {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *TopicsyncError) Wrap(err error) *TopicsyncError {
	e.Wrapped = err
	return e
}

// New creates a TopicsyncError from a registered error code.
func New(code string) *TopicsyncError {
	template, ok := registry[code]
	if !ok {
		return &TopicsyncError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &TopicsyncError{
		Code:       code,
		Category:   template.Category,
		Message:    template.Message,
		Detail:     template.Detail,
		Suggestion: template.Suggestion,
		Example:    template.Example,
	}
}

// Newf creates a new TopicsyncError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *TopicsyncError {
	return &TopicsyncError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a TopicsyncError.
func FromError(err error, code string) *TopicsyncError {
	if err == nil {
		return nil
	}
	if te, ok := err.(*TopicsyncError); ok {
		return te
	}
	return New(code).Wrap(err)
}
