// Package errs tags errors with the failure class that decides how far they
// may travel. Transient failures are retried, Persistent failures are logged
// and absorbed, and only Configuration failures leave a component boundary.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind uint8

const (
	KindOther Kind = iota
	KindTransient
	KindPersistent
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPersistent:
		return "persistent"
	case KindConfiguration:
		return "configuration"
	default:
		return "other"
	}
}

// Error is a failure tagged with its Kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with kind and op. A nil err yields nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func Transient(op string, err error) error     { return E(KindTransient, op, err) }
func Persistent(op string, err error) error    { return E(KindPersistent, op, err) }
func Configuration(op string, err error) error { return E(KindConfiguration, op, err) }

// Configf builds a Configuration error from a format string.
func Configf(op, format string, args ...any) error {
	return Configuration(op, fmt.Errorf(format, args...))
}

// KindOf reports the outermost Kind attached to err, or KindOther.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOther
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
