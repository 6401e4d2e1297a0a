// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package app wires the codec, aggregator, transport and devices into the
// publisher and subscriber poll loops.
package app

import (
	"context"

	"github.com/tempmesh/tempmesh/protocol"
)

// Transport is the messaging client the loops run on. Handlers registered
// with Subscribe run inside Poll.
type Transport interface {
	protocol.MqttClient
	Poll(context.Context) (int, error)
}
