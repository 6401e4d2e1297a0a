// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import "context"

type (
	// backend speaks one MQTT protocol version. Received messages are handed
	// to the deliver function given at construction, from the backend's own
	// goroutines.
	backend interface {
		connect(ctx context.Context) error
		publish(
			ctx context.Context,
			topic string,
			payload []byte,
			opts *PublishOptions,
		) error
		subscribe(ctx context.Context, filter string, qos QoS) error
		close() error
	}

	deliverFunc = func(*Message)
)
