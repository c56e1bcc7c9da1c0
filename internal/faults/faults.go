// Package faults classifies pipeline failures so the retry policy and the
// dispatcher can decide between retrying, failing the interview, and leaving
// the message for redelivery.
package faults

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// KindUnknown is the zero classification for errors this package never saw.
	KindUnknown Kind = "unknown"
	// KindValidation covers malformed messages and ids. Terminal for the message.
	KindValidation Kind = "validation"
	// KindNotFound covers references to interviews that do not exist. Terminal.
	KindNotFound Kind = "not_found"
	// KindMedia covers unprocessable source content. Terminal for the interview.
	KindMedia Kind = "media"
	// KindService covers transient backend failures: timeouts, throttling,
	// network errors. Eligible for retry.
	KindService Kind = "service"
	// KindExtraction covers extraction-backend failures. Eligible for retry.
	KindExtraction Kind = "extraction"
	// KindPersistence covers state/result store write failures. Eligible for
	// retry; a persistence failure while recording a terminal state is the one
	// case the dispatcher escalates instead of acknowledging.
	KindPersistence Kind = "persistence"
)

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Err: fmt.Errorf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Err: fmt.Errorf(format, args...)}
}

func Media(err error) error { return New(KindMedia, err) }
func Service(err error) error { return New(KindService, err) }
func Extraction(err error) error { return New(KindExtraction, err) }
func Persistence(err error) error { return New(KindPersistence, err) }

// KindOf returns the innermost classification of err, or KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsTerminal reports whether err must not be retried locally.
func IsTerminal(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindMedia:
		return true
	default:
		return false
	}
}

// IsTransient reports whether err is eligible for retry with backoff.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindService, KindExtraction, KindPersistence:
		return true
	default:
		return false
	}
}
