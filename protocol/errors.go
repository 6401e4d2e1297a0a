// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package protocol

import (
	"log/slog"

	"github.com/tempmesh/tempmesh/internal/log"
)

type (
	// Error represents a structured protocol error.
	Error struct {
		Message string
		Kind    ErrorKind

		Topic       string
		ContentType string

		NestedError error
	}

	// ErrorKind defines the type of error being thrown.
	ErrorKind int
)

// The following are the defined error kinds.
const (
	PayloadInvalid ErrorKind = iota
	HeaderInvalid
	ArgumentInvalid
	MqttError
)

func (k ErrorKind) String() string {
	switch k {
	case PayloadInvalid:
		return "payload invalid"
	case HeaderInvalid:
		return "header invalid"
	case ArgumentInvalid:
		return "argument invalid"
	case MqttError:
		return "mqtt error"
	default:
		return "unknown"
	}
}

// Error returns the error as a string.
func (e *Error) Error() string {
	if e.NestedError != nil {
		return e.Message + ": " + e.NestedError.Error()
	}
	return e.Message
}

// Unwrap returns the nested error.
func (e *Error) Unwrap() error {
	return e.NestedError
}

// Attrs returns additional attributes for slog, including those of the
// nested error when it has any.
func (e *Error) Attrs() []slog.Attr {
	a := make([]slog.Attr, 0, 8)

	a = append(a, slog.String("kind", e.Kind.String()))

	if e.Topic != "" {
		a = append(a, slog.String("topic", e.Topic))
	}
	if e.ContentType != "" {
		a = append(a, slog.String("content_type", e.ContentType))
	}
	if e.NestedError != nil {
		a = append(a, slog.String("nested_error", e.NestedError.Error()))
		if n, ok := e.NestedError.(log.Attrs); ok {
			a = append(a, slog.Group("nested", attrsToAny(n.Attrs())...))
		}
	}

	return a
}

func attrsToAny(attrs []slog.Attr) []any {
	out := make([]any, len(attrs))
	for i, a := range attrs {
		out[i] = a
	}
	return out
}
