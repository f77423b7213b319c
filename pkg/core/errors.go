// Package core provides the conversational memory engine: context assembly,
// turn recording, semantic memory management, and user purging.
package core

import (
	"errors"
	"fmt"
)

// Predefined errors classifying every failure the engine can surface.
//
// The taxonomy splits failures into two propagation classes: validation and
// persistence failures surface to the caller; embedding, index, and
// generation failures are recovered inside the engine (degraded recall,
// skipped write, fallback reply) and only show up in logs.
var (
	// ErrInvalidInput indicates malformed caller input (empty user id or
	// message). Returned before any store access.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPersistence indicates a structured store read/write failure.
	// Fatal to the current turn: profile and history are the system of
	// record.
	ErrPersistence = errors.New("persistence failed")

	// ErrEmbedding indicates that embedding computation failed. Non-fatal:
	// the affected memory operation degrades to an empty result or a
	// skipped write.
	ErrEmbedding = errors.New("embedding generation failed")

	// ErrIndex indicates a semantic index read/write failure. Non-fatal
	// for recall, logged-and-ignored for remember.
	ErrIndex = errors.New("semantic index operation failed")

	// ErrGeneration indicates that the external generation call failed.
	// Recovered locally by substituting the fallback reply.
	ErrGeneration = errors.New("generation failed")
)

// EngineError wraps errors with operation context.
//
// Example: "convomem: HandleTurn: persistence failed: ...". The underlying
// taxonomy sentinel stays reachable through errors.Is.
type EngineError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns the formatted message "convomem: <Op>: <Err>".
func (e *EngineError) Error() string {
	return fmt.Sprintf("convomem: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is / errors.As.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError wraps err with the operation name. Returns nil when err is
// nil, so it can wrap return values unconditionally.
func NewEngineError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{Op: op, Err: err}
}

// wrapSentinel ties a cause to its taxonomy sentinel so callers can match
// either with errors.Is.
func wrapSentinel(sentinel, cause error) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}
