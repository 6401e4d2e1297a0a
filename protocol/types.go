// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package protocol

import (
	"context"
	"log/slog"

	"github.com/tempmesh/tempmesh/mqtt"
)

type (
	// MqttClient is the client used for the underlying MQTT connection.
	MqttClient interface {
		Publish(context.Context, string, []byte, ...mqtt.PublishOption) error
		Subscribe(
			context.Context,
			string,
			mqtt.MessageHandler,
			...mqtt.SubscribeOption,
		) error
	}

	// WithQoS sets the QoS of sends or of the receiver's subscription.
	WithQoS mqtt.QoS

	// This option is not used directly; see WithLogger below.
	withLogger struct{ *slog.Logger }
)

func (o WithQoS) telemetrySender(opt *TelemetrySenderOptions) {
	opt.QoS = mqtt.QoS(o)
}

func (o WithQoS) telemetryReceiver(opt *TelemetryReceiverOptions) {
	opt.QoS = mqtt.QoS(o)
}

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) interface {
	TelemetrySenderOption
	TelemetryReceiverOption
} {
	return withLogger{logger}
}

func (o withLogger) telemetrySender(opt *TelemetrySenderOptions) {
	opt.Logger = o.Logger
}

func (o withLogger) telemetryReceiver(opt *TelemetryReceiverOptions) {
	opt.Logger = o.Logger
}
