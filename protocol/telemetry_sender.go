// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package protocol

import (
	"context"
	"log/slog"

	"github.com/tempmesh/tempmesh/internal/log"
	"github.com/tempmesh/tempmesh/internal/options"
	"github.com/tempmesh/tempmesh/mqtt"
)

type (
	// TelemetrySender publishes values of type T on a single topic.
	TelemetrySender[T any] struct {
		client   MqttClient
		encoding Encoding[T]
		topic    string
		qos      mqtt.QoS
		log      log.Logger
	}

	// TelemetrySenderOption represents a single telemetry sender option.
	TelemetrySenderOption interface {
		telemetrySender(*TelemetrySenderOptions)
	}

	// TelemetrySenderOptions are the resolved telemetry sender options.
	TelemetrySenderOptions struct {
		QoS    mqtt.QoS
		Logger *slog.Logger
	}

	// SendOption represent a single per-send option.
	SendOption interface{ send(*SendOptions) }

	// SendOptions are the resolved per-send options.
	SendOptions struct {
		Retain bool
	}

	// WithRetain indicates that the telemetry event should be retained by the
	// broker.
	WithRetain bool
)

// NewTelemetrySender creates a new telemetry sender.
func NewTelemetrySender[T any](
	client MqttClient,
	encoding Encoding[T],
	topic string,
	opt ...TelemetrySenderOption,
) (*TelemetrySender[T], error) {
	var opts TelemetrySenderOptions
	opts.Apply(opt)

	if client == nil || encoding == nil {
		return nil, &Error{
			Message: "client and encoding must not be nil",
			Kind:    ArgumentInvalid,
		}
	}
	if err := mqtt.ValidateTopicName(topic); err != nil {
		return nil, &Error{
			Message:     "invalid telemetry topic",
			Kind:        ArgumentInvalid,
			Topic:       topic,
			NestedError: err,
		}
	}

	return &TelemetrySender[T]{
		client:   client,
		encoding: encoding,
		topic:    topic,
		qos:      opts.QoS,
		log:      log.Wrap(opts.Logger),
	}, nil
}

// Topic returns the topic the sender publishes on.
func (ts *TelemetrySender[T]) Topic() string {
	return ts.topic
}

// Send encodes and publishes the value. With QoS 1 it blocks until the
// broker acknowledges.
func (ts *TelemetrySender[T]) Send(
	ctx context.Context,
	val T,
	opt ...SendOption,
) error {
	var opts SendOptions
	opts.Apply(opt)

	data, err := serialize(ts.encoding, val)
	if err != nil {
		ts.log.Err(ctx, err, slog.String("topic", ts.topic))
		return err
	}

	ts.log.Debug(ctx, "sending telemetry",
		slog.String("topic", ts.topic),
		slog.Int("payload_size", len(data.Payload)),
	)

	if err := ts.client.Publish(
		ctx,
		ts.topic,
		data.Payload,
		mqtt.WithQoS(ts.qos),
		mqtt.WithRetain(opts.Retain),
	); err != nil {
		return &Error{
			Message:     "telemetry send failed",
			Kind:        MqttError,
			Topic:       ts.topic,
			NestedError: err,
		}
	}
	return nil
}

// Apply resolves the provided list of options.
func (o *TelemetrySenderOptions) Apply(
	opts []TelemetrySenderOption,
	rest ...TelemetrySenderOption,
) {
	for opt := range options.Apply[TelemetrySenderOption](opts, rest...) {
		opt.telemetrySender(o)
	}
}

func (o *TelemetrySenderOptions) telemetrySender(opt *TelemetrySenderOptions) {
	if o != nil {
		*opt = *o
	}
}

// Apply resolves the provided list of options.
func (o *SendOptions) Apply(opts []SendOption, rest ...SendOption) {
	for opt := range options.Apply[SendOption](opts, rest...) {
		opt.send(o)
	}
}

func (o *SendOptions) send(opt *SendOptions) {
	if o != nil {
		*opt = *o
	}
}

func (o WithRetain) send(opt *SendOptions) {
	opt.Retain = bool(o)
}
