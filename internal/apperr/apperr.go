// Package apperr classifies failures so callers can decide what is worth
// retrying. Only transient service errors are ever retried; everything
// else is terminal for its unit of work.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation: bad or missing input. Terminal, no side effects.
	KindValidation
	// KindBusiness: a domain rule was violated (insufficient stock,
	// empty cart). Terminal for that unit of work.
	KindBusiness
	// KindTransient: timeouts, throttling, 5xx. Retryable.
	KindTransient
	// KindPermanent: a downstream failure that will not heal on retry.
	KindPermanent
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindBusiness:
		return "business"
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the classification of err, or KindUnknown if it carries
// none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is worth retrying. Unclassified errors
// are not retried.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}
