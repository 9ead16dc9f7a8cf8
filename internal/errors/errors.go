// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package errors defines typed errors with categories for user-friendly reporting.
// It provides a structured approach to error handling with machine-readable error kinds
// and human-friendly messages, so callers can decide whether a failure is worth a retry,
// a re-login, or a plain message.
//
// The package supports wrapping underlying errors while maintaining error kind information.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// Validation indicates malformed caller input (empty patient key, bad query file).
	// Never retried.
	Validation Kind = "validation"
	// Transport indicates the remote call failed (network, non-2xx status).
	Transport Kind = "transport"
	// Auth indicates missing or expired credentials that could not be refreshed.
	Auth Kind = "auth"
	// Cache indicates a result cache read or write failure. Recovered locally.
	Cache Kind = "cache"
	// Config indicates an unreadable or invalid configuration.
	Config Kind = "config"
	// Export indicates a failure writing a table to a file or database.
	Export Kind = "export"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// Newf is New with a formatted message.
func Newf(kind Kind, format string, args ...any) *E {
	return &E{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *E in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
