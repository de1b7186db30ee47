// Package xerrors implements the five-way error taxonomy from spec.md §7:
// Fatal, Protocol, Admission, Transactional, Transient. Each component
// returns one of these wrapper kinds so the process root (cmd/iroha) can
// decide, purely from the error's Kind, whether to exit, log-and-drop, or
// retry, without re-deriving the policy at every call site.
package xerrors

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	pkgerrors "github.com/pkg/errors"
)

// Kind classifies an error per §7's propagation policy.
type Kind int

const (
	// Fatal errors (storage I/O failure, corrupted chain under strict init,
	// cryptography failure) are logged and the process exits non-zero.
	Fatal Kind = iota
	// Protocol errors (bad signature, wrong prev_hash, stale view-change
	// index, verdict mismatch) are dropped by the component that detected
	// them; if persistent, they trigger a view change.
	Protocol
	// Admission errors are transaction-queue rejections surfaced to the
	// submitter; never logged above debug.
	Admission
	// Transactional errors are per-transaction instruction failures
	// recorded as Rejected(reason) inside a committed block; never fatal,
	// never retried.
	Transactional
	// Transient errors (network I/O, timeouts) are handled by reconnect or
	// the next gossip/sync cycle.
	Transient
)

func (k Kind) String() string {
	switch k {
	case Fatal:
		return "fatal"
	case Protocol:
		return "protocol"
	case Admission:
		return "admission"
	case Transactional:
		return "transactional"
	case Transient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind and, for Fatal errors, a stack
// trace captured via github.com/pkg/errors at the point of first detection
// so an operator reading the exit log sees where durability was lost.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, msg string) *Error {
	if kind == Fatal {
		return &Error{Kind: kind, Cause: pkgerrors.New(msg)}
	}
	return &Error{Kind: kind, Cause: errors.New(msg)}
}

func Wrap(kind Kind, cause error, msg string) *Error {
	if cause == nil {
		return nil
	}
	if kind == Fatal {
		return &Error{Kind: kind, Cause: pkgerrors.Wrap(cause, msg)}
	}
	return &Error{Kind: kind, Cause: fmt.Errorf("%s: %w", msg, cause)}
}

// Is reports whether err was constructed with the given Kind, unwrapping
// through fmt.Errorf/%w chains.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Aggregate folds a batch of independent failures — e.g. the per-peer
// send errors from a broadcast, or per-signer verification failures across
// a validator set — into one error, rather than a log line per failure.
// Returns nil if every entry is nil.
func Aggregate(errs []error) error {
	var merr *multierror.Error
	for _, e := range errs {
		if e != nil {
			merr = multierror.Append(merr, e)
		}
	}
	return merr.ErrorOrNil()
}
