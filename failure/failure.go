// Package failure defines the error kinds surfaced by the secure channel core.
//
// Every package-level sentinel in this module is built with New so that
// callers can classify failures without string matching:
//
//	if errors.Is(err, failure.ErrAuthentication) {
//	    // one generic signal, never more detail
//	}
package failure

import (
	"errors"
	"fmt"
)

// Kinds. Each error returned by this module matches exactly one of these
// through errors.Is.
var (
	// ErrProtocol covers malformed frames, unknown pattern bytes, unsupported
	// envelope versions and size violations. Safe to report in detail.
	ErrProtocol = errors.New("protocol error")

	// ErrAuthentication covers every handshake or envelope crypto failure.
	ErrAuthentication = errors.New("authentication failed")

	// ErrTimeout is returned when a handshake misses its deadline.
	ErrTimeout = errors.New("handshake timed out")

	// ErrTrust is returned when a cached key conflicts with a discovered key.
	ErrTrust = errors.New("trust conflict")
)

var kinds = []error{ErrProtocol, ErrAuthentication, ErrTimeout, ErrTrust}

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// New returns a sentinel error that matches both itself and kind.
func New(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

type wrapped struct {
	kind error
	err  error
}

func (w *wrapped) Error() string { return w.err.Error() }

func (w *wrapped) Unwrap() []error { return []error{w.err, w.kind} }

// Wrap formats a message like fmt.Errorf and attaches kind when the result
// does not already carry one.
func Wrap(kind error, format string, args ...interface{}) error {
	err := fmt.Errorf(format, args...)
	if KindOf(err) != nil {
		return err
	}
	return &wrapped{kind: kind, err: err}
}

// KindOf reports which kind err belongs to, or nil.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// KindName returns a short label for err's kind, for metrics and logs.
func KindName(err error) string {
	switch KindOf(err) {
	case ErrProtocol:
		return "protocol"
	case ErrAuthentication:
		return "authentication"
	case ErrTimeout:
		return "timeout"
	case ErrTrust:
		return "trust"
	default:
		if err == nil {
			return "none"
		}
		return "internal"
	}
}
