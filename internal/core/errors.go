package core

import (
	"errors"
)

var (
	// ErrNotFound indicates a referenced file record or blob does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDimensionMismatch indicates an embedding whose length differs from
	// the collection's configured dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrMalformedEmbedding indicates an embedding response with the wrong
	// shape or count.
	ErrMalformedEmbedding = errors.New("malformed embedding response")

	// ErrQueueDisabled indicates no job queue broker is configured.
	ErrQueueDisabled = errors.New("job queue disabled")

	// ErrInvalidTransition indicates a status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable. Retrying the same input is
// expected to reproduce the failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err should not be retried by the queue.
func IsPermanent(err error) bool {
	var pe *permanentError
	if errors.As(err, &pe) {
		return true
	}
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrMalformedEmbedding) ||
		errors.Is(err, ErrInvalidTransition)
}
