// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package errs attaches a small error-kind taxonomy to ordinary error
// chains, so callers can branch on what went wrong without string matching.
package errs

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

// Kind classifies an error for callers.
type Kind int

const (
	Unknown Kind = iota
	InvalidArgument
	AuthenticationFailed
	ReplayDetected
	SessionExpired
	SessionNotFound
	HandshakeFailed
	PreconditionFailed
	InsufficientFunds
	QuorumNotReached
	VotingClosed
	ProposalNotFound
	TimelockNotElapsed
	TimelockPaused
	Expired
	NotFound
	RateLimited
	Unavailable
	Cancelled
	Internal
)

var kindNames = map[Kind]string{
	Unknown:              "unknown",
	InvalidArgument:      "invalid argument",
	AuthenticationFailed: "authentication failed",
	ReplayDetected:       "replay detected",
	SessionExpired:       "session expired",
	SessionNotFound:      "session not found",
	HandshakeFailed:      "handshake failed",
	PreconditionFailed:   "precondition failed",
	InsufficientFunds:    "insufficient funds",
	QuorumNotReached:     "quorum not reached",
	VotingClosed:         "voting closed",
	ProposalNotFound:     "proposal not found",
	TimelockNotElapsed:   "timelock not elapsed",
	TimelockPaused:       "timelock paused",
	Expired:              "expired",
	NotFound:             "not found",
	RateLimited:          "rate limited",
	Unavailable:          "unavailable",
	Cancelled:            "cancelled",
	Internal:             "internal",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// Transient reports whether an error of this kind is a retry candidate.
func (k Kind) Transient() bool {
	return k == Unavailable || k == RateLimited
}

// Security reports whether an error of this kind must be recorded as a
// security event.
func (k Kind) Security() bool {
	return k == AuthenticationFailed || k == ReplayDetected
}

type kindError struct {
	kind  Kind
	cause error
}

func (e *kindError) Error() string {
	if e.cause != nil {
		return e.kind.String() + ": " + e.cause.Error()
	}
	return e.kind.String()
}

func (e *kindError) Unwrap() error { return e.cause }

// Cause implements the pkg/errors causer chain.
func (e *kindError) Cause() error { return e.cause }

// New creates an error of the given kind.
func New(kind Kind, msg string) error {
	return &kindError{kind: kind, cause: errors.New(msg)}
}

// Errorf creates a formatted error of the given kind.
func Errorf(kind Kind, format string, args ...any) error {
	return &kindError{kind: kind, cause: errors.Errorf(format, args...)}
}

// WithKind tags err with kind. Returns nil for a nil err.
func WithKind(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, cause: err}
}

// KindOf reports the kind of err, walking the wrap chain. Errors never
// tagged report Unknown.
func KindOf(err error) Kind {
	for err != nil {
		if ke, ok := err.(*kindError); ok {
			return ke.kind
		}
		err = stderrors.Unwrap(err)
	}
	return Unknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Opaque converts an internal error into a caller-facing one that leaks no
// detail, preserving only the Internal kind.
func Opaque(err error) error {
	if err == nil {
		return nil
	}
	return New(Internal, "internal error")
}
