package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// Class says whether a failed completion may succeed when sent again.
// The client never resends; callers that own a retry policy read the class.
type Class int

const (
	// ClassFatal failures repeat on every attempt: bad arguments, unknown
	// providers, rejected credentials, unparseable replies.
	ClassFatal Class = iota
	// ClassTransient failures depend on the server's state: network errors,
	// rate limits and 5xx responses.
	ClassTransient
)

func (c Class) String() string {
	if c == ClassTransient {
		return "transient"
	}
	return "fatal"
}

// CompletionError is returned for every failed completion.
type CompletionError struct {
	Class Class
	// StatusCode is the HTTP status of the reply, or 0 when none arrived.
	StatusCode int
	// RequestID is the X-Request-ID sent with the request, if one was built.
	RequestID string
	Err       error
}

func (e *CompletionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s completion error (status %d): %v", e.Class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s completion error: %v", e.Class, e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a failure worth resending.
func Transient(err error) error {
	return &CompletionError{Class: ClassTransient, Err: err}
}

// Fatal wraps err as a failure that will repeat.
func Fatal(err error) error {
	return &CompletionError{Class: ClassFatal, Err: err}
}

// classifyStatus maps a non-200 reply to a class. Rate limits and server
// errors are transient; auth and request errors are fatal.
func classifyStatus(statusCode int) Class {
	if statusCode == http.StatusTooManyRequests || statusCode >= 500 {
		return ClassTransient
	}
	return ClassFatal
}

// IsTransient reports whether err carries a transient CompletionError.
func IsTransient(err error) bool {
	var ce *CompletionError
	return errors.As(err, &ce) && ce.Class == ClassTransient
}

// IsFatal reports whether err carries a fatal CompletionError.
func IsFatal(err error) bool {
	var ce *CompletionError
	return errors.As(err, &ce) && ce.Class == ClassFatal
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var ce *CompletionError
	if errors.As(err, &ce) {
		return ce.StatusCode
	}
	return 0
}
