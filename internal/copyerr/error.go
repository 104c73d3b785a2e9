// Package copyerr defines the error taxonomy shared by every layer of
// localsync's core. It mirrors the teacher's fserrors.NoRetryError /
// fserrors.NoLowLevelRetryError idiom: a thin typed wrapper around a
// plain error, inspected with errors.As rather than string matching.
package copyerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error behaviorally, per spec §7.
type Kind int

const (
	// Precondition covers invalid arguments: zero permits, empty
	// paths, negative offsets. Never recovered internally.
	Precondition Kind = iota
	// Transport covers a kernel-level I/O failure on a primitive.
	Transport
	// ResourceExhaustion is specifically EMFILE.
	ResourceExhaustion
	// NotSupported means the primitive has no kernel/filesystem
	// support here (e.g. range copy across mounts).
	NotSupported
	// PolicyDenied is a permission-denied failure while applying
	// non-critical metadata; it does not fail the entry's data copy.
	PolicyDenied
	// Aborted means processing stopped due to cancellation.
	Aborted
)

func (k Kind) String() string {
	switch k {
	case Precondition:
		return "precondition"
	case Transport:
		return "transport"
	case ResourceExhaustion:
		return "resource-exhaustion"
	case NotSupported:
		return "not-supported"
	case PolicyDenied:
		return "policy-denied"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with an operation name, the
// source/destination paths involved, and its behavioral Kind.
type Error struct {
	Kind  Kind
	Op    string // e.g. "range_copy", "statx", "mkdir"
	Src   string
	Dst   string
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Src != "" && e.Dst != "":
		return fmt.Sprintf("%s %s -> %s: %v", e.Op, e.Src, e.Dst, e.Err)
	case e.Src != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.Src, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

// Unwrap exposes the underlying error for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Err }

// New wraps err with the given operation, kind, and path context. If
// err is already nil, New returns nil so call sites can use it
// unconditionally: `return copyerr.New(...)`.
func New(kind Kind, op, src, dst string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Src: src, Dst: dst, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is
// an *Error; otherwise it returns Transport, the conservative default
// for an unclassified kernel-level failure.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Transport
}

// IsFatal reports whether an error kind always aborts the run, per
// spec §7's propagation policy: only Precondition errors and errors
// opening the source/destination roots are fatal; this helper covers
// the Kind half of that rule.
func IsFatal(err error) bool {
	return KindOf(err) == Precondition
}
