// Package apperr defines the error taxonomy shared by every boundary of the
// service. Internal packages wrap failures with eris and tag them with a Kind;
// the HTTP layer maps Kinds onto status codes without inspecting messages.
package apperr

import (
	"errors"

	"github.com/rotisserie/eris"
)

// Kind classifies a failure for boundary handling.
type Kind int

const (
	// KindUnexpected is any internal failure not covered by a more specific
	// kind. Surfaced as a generic failure; details stay in the logs.
	KindUnexpected Kind = iota

	// KindInvalidArgument marks malformed or missing required input. Not
	// retryable; the caller must correct the request.
	KindInvalidArgument

	// KindNotFound marks a referenced entity that does not exist.
	KindNotFound

	// KindAccessDenied marks an authorization failure.
	KindAccessDenied

	// KindUpstreamUnavailable marks an unreachable backing store or dataset.
	// Retryable by the caller with backoff; this core never retries itself.
	KindUpstreamUnavailable
)

// String returns the canonical name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindAccessDenied:
		return "access_denied"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	default:
		return "unexpected"
	}
}

// Error tags an underlying error with a Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a kinded error with a fresh eris root.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Err: eris.New(msg)}
}

// Wrap tags err with kind and an eris context message. Returns nil if err is
// nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: eris.Wrap(err, msg)}
}

// KindOf returns the Kind of the first tagged error in the chain, or
// KindUnexpected when no tag is present.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnexpected
}

// IsRetryable reports whether the error is worth retrying with backoff.
func IsRetryable(err error) bool {
	return KindOf(err) == KindUpstreamUnavailable
}
