// Package errs provides the unified error type used across sphinxql.
//
// Every subsystem (config, transport, balancer, health cache, client) wraps
// its native errors into *errs.Error before returning them. Callers use the
// Is* predicates to tell a missing profile from a dead pool without
// importing driver packages.
//
// Usage:
//
//	// In the transport, wrap native errors:
//	return errs.Wrap(errs.ErrKindConnectionFailed, "dial 10.0.0.4:9306", err)
//
//	// At the call site, check the error kind:
//	if errs.IsNoReachableNode(err) {
//	    // every replica of the pool is down
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindConfig                   // profile missing, inactive or malformed
	ErrKindConnectionFailed         // a node refused or failed the connection
	ErrKindNoReachableNode          // every node of a pool failed probing
	ErrKindQueryFailed              // server rejected the batch or a statement in it
	ErrKindTimeout                  // context deadline / cancellation
	ErrKindInvalidInput             // bad arguments from the caller
	ErrKindCache                    // health-cache backend failure
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindConfig:
		return "config"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindNoReachableNode:
		return "no_reachable_node"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindCache:
		return "cache"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by sphinxql subsystems.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a format string.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// IsConfig reports whether err is a configuration (setup) error.
func IsConfig(err error) bool {
	return KindOf(err) == ErrKindConfig
}

// IsConnectionFailed reports whether err is a connectivity failure to one node.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

// IsNoReachableNode reports whether every node of a balanced pool was dead.
func IsNoReachableNode(err error) bool {
	return KindOf(err) == ErrKindNoReachableNode
}

// IsQueryFailed reports whether err is a server-side batch or statement failure.
func IsQueryFailed(err error) bool {
	return KindOf(err) == ErrKindQueryFailed
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsCache reports whether err came from a health-cache backend.
func IsCache(err error) bool {
	return KindOf(err) == ErrKindCache
}

// KindOf extracts the ErrKind from the first *Error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
