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
	// TelemetryReceiver decodes messages arriving on a topic filter and
	// passes the ones that decode to its handler. Payloads that fail to
	// decode are logged and dropped.
	TelemetryReceiver[T any] struct {
		client   MqttClient
		encoding Encoding[T]
		filter   string
		handler  TelemetryHandler[T]
		options  TelemetryReceiverOptions
		log      log.Logger
	}

	// TelemetryReceiverOption represents a single telemetry receiver option.
	TelemetryReceiverOption interface {
		telemetryReceiver(*TelemetryReceiverOptions)
	}

	// TelemetryReceiverOptions are the resolved telemetry receiver options.
	TelemetryReceiverOptions struct {
		QoS    mqtt.QoS
		OnDrop DropHandler
		Logger *slog.Logger
	}

	// TelemetryHandler is the user-provided implementation of a single
	// telemetry event handler.
	TelemetryHandler[T any] func(context.Context, *TelemetryMessage[T]) error

	// TelemetryMessage contains a decoded telemetry value.
	TelemetryMessage[T any] struct {
		Payload  T
		Topic    string
		Retained bool
	}

	// DropHandler is notified of every message that failed to decode.
	DropHandler func(topic string, err error)

	// WithDropHandler registers a callback for dropped messages.
	WithDropHandler DropHandler
)

// NewTelemetryReceiver creates a new telemetry receiver. Call Start to
// subscribe.
func NewTelemetryReceiver[T any](
	client MqttClient,
	encoding Encoding[T],
	filter string,
	handler TelemetryHandler[T],
	opt ...TelemetryReceiverOption,
) (*TelemetryReceiver[T], error) {
	var opts TelemetryReceiverOptions
	opts.Apply(opt)

	if client == nil || encoding == nil || handler == nil {
		return nil, &Error{
			Message: "client, encoding and handler must not be nil",
			Kind:    ArgumentInvalid,
		}
	}
	if err := mqtt.ValidateTopicFilter(filter); err != nil {
		return nil, &Error{
			Message:     "invalid telemetry topic filter",
			Kind:        ArgumentInvalid,
			Topic:       filter,
			NestedError: err,
		}
	}

	return &TelemetryReceiver[T]{
		client:   client,
		encoding: encoding,
		filter:   filter,
		handler:  handler,
		options:  opts,
		log:      log.Wrap(opts.Logger),
	}, nil
}

// Start subscribes to the receiver's topic filter.
func (tr *TelemetryReceiver[T]) Start(ctx context.Context) error {
	if err := tr.client.Subscribe(
		ctx,
		tr.filter,
		tr.onMessage,
		mqtt.WithQoS(tr.options.QoS),
	); err != nil {
		return &Error{
			Message:     "telemetry subscribe failed",
			Kind:        MqttError,
			Topic:       tr.filter,
			NestedError: err,
		}
	}
	tr.log.Debug(ctx, "listening for telemetry",
		slog.String("topic", tr.filter))
	return nil
}

func (tr *TelemetryReceiver[T]) onMessage(
	ctx context.Context,
	msg *mqtt.Message,
) {
	value, err := deserialize(tr.encoding, &Data{Payload: msg.Payload})
	if err != nil {
		if e, ok := err.(*Error); ok {
			e.Topic = msg.Topic
		}
		tr.log.Warn(ctx, err, slog.Int("payload_size", len(msg.Payload)))
		if tr.options.OnDrop != nil {
			tr.options.OnDrop(msg.Topic, err)
		}
		return
	}

	if err := tr.handler(ctx, &TelemetryMessage[T]{
		Payload:  value,
		Topic:    msg.Topic,
		Retained: msg.Retained,
	}); err != nil {
		tr.log.Err(ctx, err, slog.String("topic", msg.Topic))
	}
}

// Apply resolves the provided list of options.
func (o *TelemetryReceiverOptions) Apply(
	opts []TelemetryReceiverOption,
	rest ...TelemetryReceiverOption,
) {
	for opt := range options.Apply[TelemetryReceiverOption](opts, rest...) {
		opt.telemetryReceiver(o)
	}
}

func (o *TelemetryReceiverOptions) telemetryReceiver(
	opt *TelemetryReceiverOptions,
) {
	if o != nil {
		*opt = *o
	}
}

func (o WithDropHandler) telemetryReceiver(opt *TelemetryReceiverOptions) {
	opt.OnDrop = DropHandler(o)
}
