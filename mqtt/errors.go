// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"fmt"
	"log/slog"
)

// ClientState indicates the current state of the client.
type ClientState byte

const (
	// The client has not yet connected.
	NotStarted ClientState = iota

	// The client has connected and has not yet been closed.
	Started

	// The client has been closed.
	ShutDown
)

// ClientStateError is returned when the operation cannot proceed due to the
// state of the client.
type ClientStateError struct {
	State ClientState
}

func (e *ClientStateError) Error() string {
	switch e.State {
	case NotStarted:
		return "the client has not yet connected"
	case Started:
		return "the client has already connected"
	case ShutDown:
		return "the client has been closed"
	default:
		return ""
	}
}

// ConnectionError indicates an issue opening or using the network connection
// to the MQTT server. It may wrap an underlying error using Go standard error
// wrapping.
type ConnectionError struct {
	wrapped error
	message string
}

func (e *ConnectionError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *ConnectionError) Unwrap() error {
	return e.wrapped
}

// Attrs returns additional attributes for slog.
func (e *ConnectionError) Attrs() []slog.Attr {
	if e.wrapped == nil {
		return nil
	}
	return []slog.Attr{slog.String("cause", e.wrapped.Error())}
}

// ConnackError indicates that the server refused the connection.
type ConnackError struct {
	ReasonCode byte
}

func (e *ConnackError) Error() string {
	if name, ok := connackReasons[e.ReasonCode]; ok {
		return "connection refused: " + name
	}
	return fmt.Sprintf("connection refused with reason code %#x", e.ReasonCode)
}

// Attrs returns additional attributes for slog.
func (e *ConnackError) Attrs() []slog.Attr {
	return []slog.Attr{slog.Int("reason_code", int(e.ReasonCode))}
}

// CONNACK refusals, keyed by their MQTT v5 code. MQTT v3.1.1 return codes are
// translated to these by the v3.1.1 backend.
var connackReasons = map[byte]string{
	0x80: "unspecified error",
	0x84: "unsupported protocol version",
	0x85: "client identifier not valid",
	0x86: "bad user name or password",
	0x87: "not authorized",
	0x88: "server unavailable",
	0x89: "server busy",
	0x8A: "banned",
	0x97: "quota exceeded",
	0x9F: "connection rate exceeded",
}

// SubackError indicates that the server refused a subscription.
type SubackError struct {
	Topic      string
	ReasonCode byte
}

func (e *SubackError) Error() string {
	return fmt.Sprintf(
		"subscription to %q refused with reason code %#x",
		e.Topic,
		e.ReasonCode,
	)
}

// Attrs returns additional attributes for slog.
func (e *SubackError) Attrs() []slog.Attr {
	return []slog.Attr{
		slog.String("topic", e.Topic),
		slog.Int("reason_code", int(e.ReasonCode)),
	}
}

// InvalidArgumentError indicates that the user has provided an invalid value
// for an option. It may wrap an underlying error using Go standard error
// wrapping.
type InvalidArgumentError struct {
	wrapped error
	message string
}

func (e *InvalidArgumentError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *InvalidArgumentError) Unwrap() error {
	return e.wrapped
}

// InboxFullError is logged when a delivery is dropped because the inbox is
// full, which means the client is not being polled often enough.
type InboxFullError struct {
	Topic string
}

func (e *InboxFullError) Error() string {
	return "inbox full; dropped message on " + e.Topic
}

// Attrs returns additional attributes for slog.
func (e *InboxFullError) Attrs() []slog.Attr {
	return []slog.Attr{slog.String("topic", e.Topic)}
}
