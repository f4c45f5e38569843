// Package apperr defines the error kinds surfaced by the pipeline and the HTTP API.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation        Kind = "validation"
	KindEmptyText         Kind = "empty_text"
	KindIrreducibleText   Kind = "irreducible_text"
	KindDependencyFailure Kind = "dependency_failure"
	KindDependencyTimeout Kind = "dependency_timeout"
	KindCacheUnavailable  Kind = "cache_unavailable"
	KindInternal          Kind = "internal"
)

// Error carries a Kind alongside the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrEmptyText         = &Error{Kind: KindEmptyText}
	ErrIrreducibleText   = &Error{Kind: KindIrreducibleText}
	ErrDependencyFailure = &Error{Kind: KindDependencyFailure}
	ErrDependencyTimeout = &Error{Kind: KindDependencyTimeout}
	ErrCacheUnavailable  = &Error{Kind: KindCacheUnavailable}
)

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrEmptyText) works
// regardless of Op or the wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Validation(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf(format, args...)}
}

func EmptyText(op string) error {
	return &Error{Kind: KindEmptyText, Op: op}
}

// Dependency wraps a failed external call. Deadline errors become
// KindDependencyTimeout; already classified errors pass through unchanged.
func Dependency(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindDependencyTimeout, Op: op, Err: err}
	}
	return &Error{Kind: KindDependencyFailure, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}
