// Package federr classifies the failures of the federation delivery core.
//
// Three kinds exist. Serialization and signature errors are fatal to the
// call they occur in; destination errors are confined to a single inbox and
// are only ever logged by the dispatcher.
package federr

import (
	"errors"
	"fmt"
)

// Kind identifies the class of a federation error
type Kind int

const (
	KindUnknown Kind = iota
	KindSerialization
	KindSignature
	KindDestination
)

func (k Kind) String() string {
	switch k {
	case KindSerialization:
		return "serialization"
	case KindSignature:
		return "signature"
	case KindDestination:
		return "destination"
	default:
		return "unknown"
	}
}

// Error carries the kind, the failing operation and the underlying cause
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Sentinels matched by kind through errors.Is
var (
	ErrSerialization = &Error{Kind: KindSerialization}
	ErrSignature     = &Error{Kind: KindSignature}
	ErrDestination   = &Error{Kind: KindDestination}
)

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return fmt.Sprintf("%s error", e.Kind)
	case e.Op == "":
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	default:
		return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality against a bare sentinel
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Serialization wraps err as a serialization failure of op
func Serialization(op string, err error) error {
	return &Error{Kind: KindSerialization, Op: op, Err: err}
}

// Signature wraps err as a signing failure of op
func Signature(op string, err error) error {
	return &Error{Kind: KindSignature, Op: op, Err: err}
}

// Destination wraps err as a per-destination failure of op
func Destination(op string, err error) error {
	return &Error{Kind: KindDestination, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

func IsSerialization(err error) bool { return errors.Is(err, ErrSerialization) }

func IsSignature(err error) bool { return errors.Is(err, ErrSignature) }

func IsDestination(err error) bool { return errors.Is(err, ErrDestination) }
