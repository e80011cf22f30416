// File: fibererr/errors.go
// Author: momentics <momentics@gmail.com>
//
// Structured error kinds shared by the reactor, socket, accept, and
// pipeline packages.

package fibererr

import (
	"errors"
	"fmt"
)

// Kind classifies the failure so callers can branch without string
// matching.
type Kind int

const (
	KindIO Kind = iota
	KindCancelled
	KindClosed
	KindResource
	KindProtocol
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindCancelled:
		return "cancelled"
	case KindClosed:
		return "closed"
	case KindResource:
		return "resource"
	case KindProtocol:
		return "protocol"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind and the operation that
// produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a *Error for op, wrapping err under kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err (or anything it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}

// Sentinel errors for conditions that do not need an operation label.
var (
	ErrClosed          = &Error{Kind: KindClosed, Op: "fiberflow", Err: errors.New("closed")}
	ErrCancelled       = &Error{Kind: KindCancelled, Op: "fiberflow", Err: errors.New("cancelled")}
	ErrReentrantAwait  = &Error{Kind: KindInternal, Op: "rpool.AwaitOnAll", Err: errors.New("reentrant call from a reactor fiber")}
	ErrResourceExhausted = &Error{Kind: KindResource, Op: "fiberflow", Err: errors.New("resource exhausted")}
)
