// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package wire

import (
	"errors"
	"fmt"
	"log/slog"
)

type (
	// Error is the structured error returned by the codec.
	Error struct {
		Message string
		Kind    ErrorKind

		Schema string
		Tag    Tag
		Field  string

		// Offset of the key or payload that failed to decode, or -1 when
		// the error is not tied to a position.
		Offset int

		Nested error
	}

	// ErrorKind classifies codec failures. Each kind is itself an error, so
	// errors.Is(err, wire.TruncatedInput) matches any *Error of that kind.
	ErrorKind int
)

// The codec error kinds.
const (
	MissingRequiredField ErrorKind = iota + 1
	UnsupportedFieldKind
	TruncatedInput
	UnknownTag
	MalformedVarint
	MalformedField
	WireKindMismatch
	ValueOutOfRange
	TypeMismatch
	InvalidSchema
)

func (k ErrorKind) String() string {
	switch k {
	case MissingRequiredField:
		return "missing required field"
	case UnsupportedFieldKind:
		return "unsupported field kind"
	case TruncatedInput:
		return "truncated input"
	case UnknownTag:
		return "unknown tag"
	case MalformedVarint:
		return "malformed varint"
	case MalformedField:
		return "malformed field"
	case WireKindMismatch:
		return "wire kind mismatch"
	case ValueOutOfRange:
		return "value out of range"
	case TypeMismatch:
		return "type mismatch"
	case InvalidSchema:
		return "invalid schema"
	default:
		return fmt.Sprintf("error kind %d", int(k))
	}
}

func (k ErrorKind) Error() string {
	return k.String()
}

// Error returns the error as a string.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s (tag %d)", msg, e.Field, e.Tag)
	} else if e.Tag != 0 {
		msg = fmt.Sprintf("%s: tag %d", msg, e.Tag)
	}
	if e.Schema != "" {
		msg = e.Schema + ": " + msg
	}
	return msg
}

// Is matches an ErrorKind.
func (e *Error) Is(target error) bool {
	k, ok := target.(ErrorKind)
	return ok && k == e.Kind
}

// Unwrap returns the nested error, if any.
func (e *Error) Unwrap() error {
	return e.Nested
}

// Attrs returns additional attributes for slog.
func (e *Error) Attrs() []slog.Attr {
	a := make([]slog.Attr, 0, 6)

	a = append(a, slog.String("kind", e.Kind.String()))

	if e.Schema != "" {
		a = append(a, slog.String("schema", e.Schema))
	}
	if e.Tag != 0 {
		a = append(a, slog.Int("tag", int(e.Tag)))
	}
	if e.Field != "" {
		a = append(a, slog.String("field", e.Field))
	}
	if e.Offset >= 0 {
		a = append(a, slog.Int("offset", e.Offset))
	}
	if e.Nested != nil {
		a = append(a, slog.String("nested_error", e.Nested.Error()))
	}

	return a
}

// KindOf returns the codec error kind of err, if it is a codec error.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
