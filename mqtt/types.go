// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"log/slog"

	"github.com/tempmesh/tempmesh/internal/options"
	"github.com/tempmesh/tempmesh/internal/retry"
)

type (
	// QoS is the MQTT quality of service level.
	QoS byte

	// Message represents a received message.
	Message struct {
		Topic    string
		Payload  []byte
		QoS      QoS
		Retained bool
	}

	// MessageHandler is a user-defined callback function used to handle
	// messages received on the subscribed topic. It is called from Poll.
	MessageHandler = func(context.Context, *Message)

	// ClientOption represents a single client option.
	ClientOption interface{ client(*ClientOptions) }

	// ClientOptions are the resolved client options.
	ClientOptions struct {
		ClientID        string
		InboxSize       int
		ConnectionRetry retry.Policy
		Logger          *slog.Logger
	}

	// PublishOption represents a single publish option.
	PublishOption interface{ publish(*PublishOptions) }

	// PublishOptions are the resolved publish options.
	PublishOptions struct {
		QoS    QoS
		Retain bool
	}

	// SubscribeOption represents a single subscribe option.
	SubscribeOption interface{ subscribe(*SubscribeOptions) }

	// SubscribeOptions are the resolved subscribe options.
	SubscribeOptions struct {
		QoS QoS
	}

	// WithClientID overrides the client ID from the connection settings.
	WithClientID string

	// WithInboxSize bounds the number of deliveries buffered between polls.
	WithInboxSize int

	// WithQoS sets the QoS level for the publish or subscribe.
	WithQoS QoS

	// WithRetain sets the retain flag for the publish.
	WithRetain bool

	// This option is not used directly; see WithConnectionRetry below.
	withConnectionRetry struct{ retry.Policy }

	// This option is not used directly; see WithLogger below.
	withLogger struct{ *slog.Logger }
)

// Quality of Service levels.
const (
	// QoS0 indicates at most once delivery.
	QoS0 QoS = iota

	// QoS1 indicates at least once delivery.
	QoS1
)

// DefaultInboxSize is the default bound of the delivery buffer.
const DefaultInboxSize = 1024

// Apply resolves the provided list of options.
func (o *ClientOptions) Apply(opts []ClientOption, rest ...ClientOption) {
	for opt := range options.Apply[ClientOption](opts, rest...) {
		opt.client(o)
	}
}

func (o *ClientOptions) client(opt *ClientOptions) {
	if o != nil {
		*opt = *o
	}
}

// Apply resolves the provided list of options.
func (o *PublishOptions) Apply(opts []PublishOption, rest ...PublishOption) {
	for opt := range options.Apply[PublishOption](opts, rest...) {
		opt.publish(o)
	}
}

// Apply resolves the provided list of options.
func (o *SubscribeOptions) Apply(
	opts []SubscribeOption,
	rest ...SubscribeOption,
) {
	for opt := range options.Apply[SubscribeOption](opts, rest...) {
		opt.subscribe(o)
	}
}

func (o WithClientID) client(opt *ClientOptions) {
	opt.ClientID = string(o)
}

func (o WithInboxSize) client(opt *ClientOptions) {
	opt.InboxSize = int(o)
}

func (o WithQoS) publish(opt *PublishOptions) {
	opt.QoS = QoS(o)
}

func (o WithQoS) subscribe(opt *SubscribeOptions) {
	opt.QoS = QoS(o)
}

func (o WithRetain) publish(opt *PublishOptions) {
	opt.Retain = bool(o)
}

// WithConnectionRetry sets the policy used for the initial connection and
// for reconnecting after the connection is lost.
func WithConnectionRetry(policy retry.Policy) ClientOption {
	return withConnectionRetry{policy}
}

func (o withConnectionRetry) client(opt *ClientOptions) {
	opt.ConnectionRetry = o.Policy
}

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return withLogger{logger}
}

func (o withLogger) client(opt *ClientOptions) {
	opt.Logger = o.Logger
}
