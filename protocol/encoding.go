// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package protocol binds typed messages to MQTT topics: an Encoding turns
// values into payloads, a TelemetrySender publishes them and a
// TelemetryReceiver decodes and dispatches them.
package protocol

import (
	stderr "errors"

	"github.com/tempmesh/tempmesh/wire"
)

type (
	// Encoding is a translation between a concrete Go type T and encoded data.
	// All methods *must* be thread-safe.
	Encoding[T any] interface {
		Serialize(T) (*Data, error)
		Deserialize(*Data) (T, error)
	}

	// Data represents encoded values along with their transmitted content
	// type, when the transport carries one.
	Data struct {
		Payload     []byte
		ContentType string
	}

	// Wire encodes messages in the tagged-field binary format. PT is the
	// pointer type implementing wire.Message, e.g.
	// Wire[sensor.Reading, *sensor.Reading].
	Wire[T any, PT interface {
		*T
		wire.Message
	}] struct {
		// DecodeOptions are applied on every Deserialize.
		DecodeOptions []wire.DecodeOption
	}

	// Raw represents a raw byte stream.
	Raw struct{}
)

// WireContentType is the content type of wire-encoded payloads.
const WireContentType = "application/x-tempmesh-wire"

// ErrUnsupportedContentType should be returned if the content type is not
// supported by this encoding.
var ErrUnsupportedContentType = stderr.New("unsupported content type")

// Utility to serialize with a protocol error.
func serialize[T any](encoding Encoding[T], value T) (*Data, error) {
	data, err := encoding.Serialize(value)
	if err != nil {
		if e, ok := err.(*Error); ok {
			return nil, e
		}
		return nil, &Error{
			Message:     "cannot serialize payload",
			Kind:        PayloadInvalid,
			NestedError: err,
		}
	}
	return data, nil
}

// Utility to deserialize with a protocol error.
func deserialize[T any](encoding Encoding[T], data *Data) (T, error) {
	value, err := encoding.Deserialize(data)
	if err != nil {
		if e, ok := err.(*Error); ok {
			return value, e
		}
		if stderr.Is(err, ErrUnsupportedContentType) {
			return value, &Error{
				Message:     "content type mismatch",
				Kind:        HeaderInvalid,
				ContentType: data.ContentType,
			}
		}
		return value, &Error{
			Message:     "cannot deserialize payload",
			Kind:        PayloadInvalid,
			NestedError: err,
		}
	}
	return value, nil
}

// Serialize encodes the message.
func (Wire[T, PT]) Serialize(t T) (*Data, error) {
	b, err := wire.Marshal(PT(&t))
	if err != nil {
		return nil, err
	}
	return &Data{b, WireContentType}, nil
}

// Deserialize decodes the message.
func (w Wire[T, PT]) Deserialize(data *Data) (T, error) {
	var t T
	switch data.ContentType {
	case "", WireContentType:
		err := wire.Unmarshal(data.Payload, PT(&t), w.DecodeOptions...)
		return t, err
	default:
		return t, ErrUnsupportedContentType
	}
}

// Serialize returns the bytes unchanged.
func (Raw) Serialize(t []byte) (*Data, error) {
	return &Data{t, "application/octet-stream"}, nil
}

// Deserialize returns the bytes unchanged.
func (Raw) Deserialize(data *Data) ([]byte, error) {
	switch data.ContentType {
	case "", "application/octet-stream":
		return data.Payload, nil
	default:
		return nil, ErrUnsupportedContentType
	}
}
