package errors

import (
	"errors"
	"fmt"
)

// Upstream source errors

var (
	// ErrSourceUnavailable indicates an external data source cannot be reached
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrRateLimited indicates an external API rejected the call due to quota
	ErrRateLimited = errors.New("rate limited")

	// ErrPermanentUpstream indicates a malformed response or auth failure
	// that retrying cannot fix
	ErrPermanentUpstream = errors.New("permanent upstream error")

	// ErrNoNewsFound indicates the news source returned no items for a symbol
	ErrNoNewsFound = errors.New("no news found")
)

// Bus errors

var (
	// ErrBusUnavailable indicates the event bus cannot accept or deliver messages
	ErrBusUnavailable = errors.New("event bus unavailable")
)

// Dispatch errors

var (
	// ErrNonRetryable indicates a notifier rejected the message permanently
	ErrNonRetryable = errors.New("non-retryable delivery failure")

	// ErrRetryExhausted indicates the retry budget for an operation was spent
	ErrRetryExhausted = errors.New("retry budget exhausted")
)

// Generic errors

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates an operation timeout
	ErrTimeout = errors.New("operation timeout")
)

// IsTransient reports whether err is worth retrying with backoff.
// Transient errors are network-level upstream failures, rate limits,
// bus outages and timeouts. Permanent upstream errors and non-retryable
// delivery failures are not.
func IsTransient(err error) bool {
	switch {
	case errors.Is(err, ErrSourceUnavailable),
		errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrBusUnavailable),
		errors.Is(err, ErrTimeout):
		return true
	}
	return false
}

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
