package anpr

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	KindInvalidInput ErrorKind = iota + 1
	KindServiceUnreachable
	KindOcrFailure
	KindPersistenceFailure
	KindRegionTableLoadFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid input"
	case KindServiceUnreachable:
		return "service unreachable"
	case KindOcrFailure:
		return "ocr failure"
	case KindPersistenceFailure:
		return "persistence failure"
	case KindRegionTableLoadFailure:
		return "region table load failure"
	default:
		return "unknown error"
	}
}

// Kind sentinels, for use with errors.Is.
var (
	ErrInvalidInput           = &Error{Kind: KindInvalidInput}
	ErrServiceUnreachable     = &Error{Kind: KindServiceUnreachable}
	ErrOcrFailure             = &Error{Kind: KindOcrFailure}
	ErrPersistenceFailure     = &Error{Kind: KindPersistenceFailure}
	ErrRegionTableLoadFailure = &Error{Kind: KindRegionTableLoadFailure}
)

type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in the chain, or zero.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
