// Package errors defines the error handling used throughout the gateway.
package errors

import (
	"bytes"
	"fmt"
	"strings"
)

// Error is the type that implements the error interface for this module.
// It carries enough structure that a caller can decide how to map the
// failure onto an HTTP status without string-matching messages.
type Error struct {
	// Op is the operation being performed, usually the name of the
	// method being invoked (Resolve, Publish, Lookup, ...).
	Op string
	// Kind classifies the error for the purposes of HTTP-status mapping
	// and retry policy.
	Kind Kind
	// Err is the underlying error that triggered this one, if any.
	Err error
}

// Kind defines the class of error, per the gateway's error-handling
// taxonomy: Input, Not-found, Conflict, Upstream-transient, Resource,
// Internal-bug.
type Kind uint8

// Kinds of errors.
const (
	Other      Kind = iota // Unclassified; not printed in the error message.
	Invalid                // Malformed input: bad hex, bad name, bad URL.
	NotExist               // Name, version, or inner path not found.
	Exist                  // Conflicting write, e.g. name already bound elsewhere.
	IO                     // Upstream storage failure after the retry budget is spent.
	Resource               // Local resource exhaustion.
	Permission             // Reserved for a future auth layer; unused today.
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "unclassified error"
	case Invalid:
		return "invalid input"
	case NotExist:
		return "not found"
	case Exist:
		return "already exists"
	case IO:
		return "upstream I/O error"
	case Resource:
		return "resource exhausted"
	case Permission:
		return "permission denied"
	}
	return "unknown error kind"
}

var zeroErr Error

// E builds an error value from its arguments. The type of each argument
// determines its meaning:
//
//	string   the operation being performed
//	Kind     the class of error
//	error    the underlying error that triggered this one
//
// If Kind is unset or Other, it is inherited from a wrapped *Error.
func E(args ...interface{}) error {
	if len(args) == 0 {
		return nil
	}
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case string:
			e.Op = a
		case Kind:
			e.Kind = a
		case *Error:
			cp := *a
			e.Err = &cp
		case error:
			e.Err = a
		default:
			return Errorf("errors.E: bad call with argument of type %T", arg)
		}
	}
	if prev, ok := e.Err.(*Error); ok {
		if e.Kind == Other {
			e.Kind = prev.Kind
			prev.Kind = Other
		}
	}
	return e
}

func pad(b *bytes.Buffer, str string) {
	if b.Len() == 0 {
		return
	}
	b.WriteString(str)
}

func (e *Error) Error() string {
	b := new(bytes.Buffer)
	if e.Op != "" {
		b.WriteString(e.Op)
	}
	if e.Kind != Other {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		if prevErr, ok := e.Err.(*Error); ok {
			if *prevErr != zeroErr {
				pad(b, ": ")
				b.WriteString(e.Err.Error())
			}
		} else {
			pad(b, ": ")
			b.WriteString(e.Err.Error())
		}
	}
	if b.Len() == 0 {
		return "no error"
	}
	return b.String()
}

// Unwrap allows the standard errors.Is / errors.As to see through an
// *Error to its cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether err is, or wraps, an *Error of the given Kind.
func Is(kind Kind, err error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	if e.Kind != Other {
		return e.Kind == kind
	}
	if e.Err != nil {
		return Is(kind, e.Err)
	}
	return kind == Other
}

// KindOf returns the Kind of err if it is, or wraps, an *Error, or Other
// if it carries no classification.
func KindOf(err error) Kind {
	e, ok := err.(*Error)
	if !ok {
		return Other
	}
	if e.Kind != Other {
		return e.Kind
	}
	if e.Err != nil {
		return KindOf(e.Err)
	}
	return Other
}

// Match reports whether the operation chain in err contains op, for tests
// that want to assert which layer raised an error without depending on
// message text.
func Match(op string, err error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	if strings.EqualFold(e.Op, op) {
		return true
	}
	return Match(op, e.Err)
}

// Str returns an error that formats as the given text. It is intended to
// be used as the error-typed argument to E.
func Str(text string) error {
	return &errorString{text}
}

type errorString struct{ s string }

func (e *errorString) Error() string { return e.s }

// Errorf is equivalent to fmt.Errorf, provided so that callers need only
// import this package for all error handling.
func Errorf(format string, args ...interface{}) error {
	return &errorString{fmt.Sprintf(format, args...)}
}
