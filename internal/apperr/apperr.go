// Package apperr defines the engine's error taxonomy: a small closed set of
// kinds that every surface (RPC, REST, CLI) maps to a stable discriminator
// and, for web surfaces, an HTTP status.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error kinds the engine produces.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindStorage    Kind = "storage"
	KindEmbedding  Kind = "embedding"
	KindLLM        Kind = "llm"
	KindConfig     Kind = "config"
)

// Error wraps an underlying error with a stable Kind and an optional
// transient flag used by the retry policy.
type Error struct {
	Kind      Kind
	Message   string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind, wrapping an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Transient marks an error as retriable.
func Transient(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err, Transient: true}
}

// KindOf extracts the Kind from err, defaulting to KindStorage if err does
// not wrap an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

// IsTransient reports whether err (or one it wraps) is flagged transient.
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Transient
	}
	return false
}

// IsNotFound reports whether err's kind is KindNotFound.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
