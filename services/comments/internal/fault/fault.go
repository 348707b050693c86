// Package fault defines the error kinds surfaced by the comment engine.
//
// Callers branch on kinds with errors.Is against the Err* sentinels and
// reach the operation and cause with errors.As.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindStorageRead
	KindStorageWrite
	KindSerializationFailed
	KindAlreadyVoted
	KindUnauthorized
	KindPathCheckFailed
	KindNotFound
	KindInvariant
)

var kindNames = map[Kind]string{
	KindUnknown:             "unknown",
	KindStorageRead:         "storage read",
	KindStorageWrite:        "storage write",
	KindSerializationFailed: "serialization failed",
	KindAlreadyVoted:        "already voted",
	KindUnauthorized:        "unauthorized",
	KindPathCheckFailed:     "path check failed",
	KindNotFound:            "not found",
	KindInvariant:           "invariant violated",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error carries a kind, the failing operation and an optional cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// Sentinels for errors.Is.
var (
	ErrStorageRead         = &Error{Kind: KindStorageRead}
	ErrStorageWrite        = &Error{Kind: KindStorageWrite}
	ErrSerializationFailed = &Error{Kind: KindSerializationFailed}
	ErrAlreadyVoted        = &Error{Kind: KindAlreadyVoted}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized}
	ErrPathCheckFailed     = &Error{Kind: KindPathCheckFailed}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrInvariant           = &Error{Kind: KindInvariant}
)

// E builds an *Error. An err that already is an *Error keeps its kind.
func E(kind Kind, op string, err error) error {
	var fe *Error
	if errors.As(err, &fe) {
		if fe.Op == "" {
			return &Error{Kind: fe.Kind, Op: op, Err: fe.Err}
		}
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of err, KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}
