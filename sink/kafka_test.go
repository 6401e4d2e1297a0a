// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package sink_test

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/tempmesh/tempmesh/sensor"
	"github.com/tempmesh/tempmesh/sink"
	"github.com/tempmesh/tempmesh/wire"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(
	_ context.Context,
	msgs ...kafka.Message,
) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaForward(t *testing.T) {
	ctx := context.Background()
	w := &fakeWriter{}
	k := sink.NewKafkaWithWriter(w, "subscriber_1", nil)

	avg := &sensor.Average{Temperature: 25, Publishers: 2, Time: 600}
	require.NoError(t, k.Forward(ctx, avg))

	require.Len(t, w.msgs, 1)
	require.Equal(t, []byte("subscriber_1"), w.msgs[0].Key)
	require.Equal(t, "publishers", w.msgs[0].Headers[0].Key)
	require.Equal(t, []byte("2"), w.msgs[0].Headers[0].Value)

	var got sensor.Average
	require.NoError(t, wire.Unmarshal(w.msgs[0].Value, &got))
	require.Equal(t, *avg, got)

	require.NoError(t, k.Close())
	require.True(t, w.closed)
}

func TestKafkaForwardError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	k := sink.NewKafkaWithWriter(w, "", nil)

	err := k.Forward(context.Background(), &sensor.Average{})
	require.EqualError(t, err, "leader not available")
}

func TestNewKafka(t *testing.T) {
	k := sink.NewKafka(sink.KafkaOptions{
		Brokers: []string{"127.0.0.1:9092"},
		Topic:   "temp.average",
	})
	require.NoError(t, k.Close())
}
