// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package protocol_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tempmesh/tempmesh/broker"
	"github.com/tempmesh/tempmesh/mqtt"
	"github.com/tempmesh/tempmesh/protocol"
	"github.com/tempmesh/tempmesh/sensor"
	"github.com/tempmesh/tempmesh/wire"
)

type readingEncoding = protocol.Wire[sensor.Reading, *sensor.Reading]

func TestTelemetry(t *testing.T) {
	ctx := context.Background()
	client := newLoopback()

	var got []*protocol.TelemetryMessage[sensor.Reading]
	receiver, err := protocol.NewTelemetryReceiver(
		client,
		readingEncoding{},
		"temp/+",
		func(_ context.Context, m *protocol.TelemetryMessage[sensor.Reading]) error {
			got = append(got, m)
			return nil
		},
		protocol.WithQoS(mqtt.QoS1),
	)
	require.NoError(t, err)
	require.NoError(t, receiver.Start(ctx))
	require.Equal(t, mqtt.QoS1, client.subQoS["temp/+"])

	sender, err := protocol.NewTelemetrySender(
		client,
		readingEncoding{},
		"temp/pico",
		protocol.WithQoS(mqtt.QoS1),
	)
	require.NoError(t, err)
	require.Equal(t, "temp/pico", sender.Topic())

	value := sensor.Reading{Temperature: 25.5, PublisherID: 7, Time: 86399}
	require.NoError(t, sender.Send(ctx, value, protocol.WithRetain(true)))

	require.Len(t, client.published, 1)
	require.Equal(t, mqtt.QoS1, client.published[0].Options.QoS)
	require.True(t, client.published[0].Options.Retain)
	require.Equal(t, []byte{
		0x0d, 0x00, 0x00, 0xcc, 0x41,
		0x10, 0x07,
		0x18, 0xff, 0xa2, 0x05,
	}, client.published[0].Payload)

	require.Len(t, got, 1)
	require.Equal(t, value, got[0].Payload)
	require.Equal(t, "temp/pico", got[0].Topic)
	require.True(t, got[0].Retained)
}

func TestReceiverDropsUndecodable(t *testing.T) {
	ctx := context.Background()
	client := newLoopback()

	var handled int
	var dropped []error
	receiver, err := protocol.NewTelemetryReceiver(
		client,
		readingEncoding{},
		"temp/pico",
		func(context.Context, *protocol.TelemetryMessage[sensor.Reading]) error {
			handled++
			return nil
		},
		protocol.WithDropHandler(func(topic string, err error) {
			require.Equal(t, "temp/pico", topic)
			dropped = append(dropped, err)
		}),
	)
	require.NoError(t, err)
	require.NoError(t, receiver.Start(ctx))

	for _, payload := range [][]byte{
		{0x0d, 0x00, 0x00},             // truncated fixed32
		{0x0d, 0x00, 0x00, 0xcc, 0x41}, // missing fields
		{0x10, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x01},
	} {
		client.inject(ctx, &mqtt.Message{Topic: "temp/pico", Payload: payload})
	}

	require.Zero(t, handled)
	require.Len(t, dropped, 3)

	var perr *protocol.Error
	require.ErrorAs(t, dropped[0], &perr)
	require.Equal(t, protocol.PayloadInvalid, perr.Kind)
	require.Equal(t, "temp/pico", perr.Topic)
	require.ErrorIs(t, dropped[0], wire.TruncatedInput)
	require.ErrorIs(t, dropped[1], wire.MissingRequiredField)
	require.ErrorIs(t, dropped[2], wire.MalformedVarint)
}

func TestReceiverRejectUnknown(t *testing.T) {
	ctx := context.Background()
	client := newLoopback()

	var handled int
	var dropped int
	receiver, err := protocol.NewTelemetryReceiver(
		client,
		readingEncoding{
			DecodeOptions: []wire.DecodeOption{wire.WithRejectUnknown(true)},
		},
		"temp/pico",
		func(context.Context, *protocol.TelemetryMessage[sensor.Reading]) error {
			handled++
			return nil
		},
		protocol.WithDropHandler(func(string, error) { dropped++ }),
	)
	require.NoError(t, err)
	require.NoError(t, receiver.Start(ctx))

	payload, err := wire.Marshal(&sensor.Reading{Temperature: 1, PublisherID: 1})
	require.NoError(t, err)
	client.inject(ctx, &mqtt.Message{
		Topic:   "temp/pico",
		Payload: append(payload, 0x20, 0x01),
	})

	require.Zero(t, handled)
	require.Equal(t, 1, dropped)
}

func TestHandlerErrorDoesNotStopReceiver(t *testing.T) {
	ctx := context.Background()
	client := newLoopback()

	calls := 0
	receiver, err := protocol.NewTelemetryReceiver(
		client,
		readingEncoding{},
		"temp/pico",
		func(context.Context, *protocol.TelemetryMessage[sensor.Reading]) error {
			calls++
			return errors.New("boom")
		},
	)
	require.NoError(t, err)
	require.NoError(t, receiver.Start(ctx))

	sender, err := protocol.NewTelemetrySender(
		client, readingEncoding{}, "temp/pico",
	)
	require.NoError(t, err)

	require.NoError(t, sender.Send(ctx, sensor.Reading{PublisherID: 1}))
	require.NoError(t, sender.Send(ctx, sensor.Reading{PublisherID: 2}))
	require.Equal(t, 2, calls)
}

func TestTelemetryArguments(t *testing.T) {
	client := newLoopback()
	noop := func(context.Context, *protocol.TelemetryMessage[[]byte]) error {
		return nil
	}

	_, err := protocol.NewTelemetrySender(client, protocol.Raw{}, "temp/+")
	requireKind(t, protocol.ArgumentInvalid, err)

	_, err = protocol.NewTelemetrySender[[]byte](nil, protocol.Raw{}, "temp")
	requireKind(t, protocol.ArgumentInvalid, err)

	_, err = protocol.NewTelemetryReceiver(client, protocol.Raw{}, "temp/#/x", noop)
	requireKind(t, protocol.ArgumentInvalid, err)

	_, err = protocol.NewTelemetryReceiver[[]byte](
		client, protocol.Raw{}, "temp/#", nil,
	)
	requireKind(t, protocol.ArgumentInvalid, err)
}

func TestTransportFailure(t *testing.T) {
	ctx := context.Background()
	client := newLoopback()
	client.failWith = &mqtt.ClientStateError{State: mqtt.NotStarted}

	sender, err := protocol.NewTelemetrySender(client, protocol.Raw{}, "temp")
	require.NoError(t, err)

	err = sender.Send(ctx, []byte("x"))
	requireKind(t, protocol.MqttError, err)

	var serr *mqtt.ClientStateError
	require.ErrorAs(t, err, &serr)

	receiver, err := protocol.NewTelemetryReceiver(
		client, protocol.Raw{}, "temp",
		func(context.Context, *protocol.TelemetryMessage[[]byte]) error {
			return nil
		},
	)
	require.NoError(t, err)
	requireKind(t, protocol.MqttError, receiver.Start(ctx))
}

func TestEncodingContentType(t *testing.T) {
	enc := readingEncoding{}

	data, err := enc.Serialize(sensor.Reading{Temperature: 1})
	require.NoError(t, err)
	require.Equal(t, protocol.WireContentType, data.ContentType)

	_, err = enc.Deserialize(&protocol.Data{
		Payload:     data.Payload,
		ContentType: "application/json",
	})
	require.ErrorIs(t, err, protocol.ErrUnsupportedContentType)

	raw, err := protocol.Raw{}.Deserialize(&protocol.Data{Payload: []byte{1}})
	require.NoError(t, err)
	require.Equal(t, []byte{1}, raw)
}

func TestTelemetryOverBroker(t *testing.T) {
	ctx := context.Background()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	b, err := broker.New(broker.Options{
		TCPAddress: fmt.Sprintf("127.0.0.1:%d", port),
	})
	require.NoError(t, err)
	require.NoError(t, b.Serve())
	defer b.Close()

	connect := func() *mqtt.Client {
		c, err := mqtt.NewClientFromConnectionString(
			fmt.Sprintf("HostName=127.0.0.1;TcpPort=%d", port),
		)
		require.NoError(t, err)
		require.NoError(t, c.Connect(ctx))
		t.Cleanup(func() { _ = c.Close() })
		return c
	}
	sub, pub := connect(), connect()

	var got []sensor.Reading
	receiver, err := protocol.NewTelemetryReceiver(
		sub, readingEncoding{}, "temp/pico",
		func(_ context.Context, m *protocol.TelemetryMessage[sensor.Reading]) error {
			got = append(got, m.Payload)
			return nil
		},
		protocol.WithQoS(mqtt.QoS1),
	)
	require.NoError(t, err)
	require.NoError(t, receiver.Start(ctx))

	sender, err := protocol.NewTelemetrySender(
		pub, readingEncoding{}, "temp/pico", protocol.WithQoS(mqtt.QoS1),
	)
	require.NoError(t, err)

	want := sensor.Reading{Temperature: -3.25, PublisherID: -12, Time: 43200}
	require.NoError(t, sender.Send(ctx, want))

	require.Eventually(t, func() bool {
		_, err := sub.Poll(ctx)
		return err == nil && len(got) == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, want, got[0])
}

func requireKind(t *testing.T, kind protocol.ErrorKind, err error) {
	t.Helper()
	var perr *protocol.Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, kind, perr.Kind)
}
