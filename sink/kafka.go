// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package sink forwards computed averages to downstream systems.
package sink

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/segmentio/kafka-go"
	"github.com/tempmesh/tempmesh/internal/log"
	"github.com/tempmesh/tempmesh/sensor"
	"github.com/tempmesh/tempmesh/wire"
)

type (
	// Sink receives every average the subscriber computes.
	Sink interface {
		Forward(context.Context, *sensor.Average) error
		Close() error
	}

	// MessageWriter is the subset of *kafka.Writer used by Kafka.
	MessageWriter interface {
		WriteMessages(context.Context, ...kafka.Message) error
		Close() error
	}

	// Kafka writes wire-encoded averages to a Kafka topic, keyed by the
	// subscriber that produced them.
	Kafka struct {
		writer MessageWriter
		key    []byte
		log    log.Logger
	}

	// KafkaOptions configure NewKafka.
	KafkaOptions struct {
		Brokers []string
		Topic   string
		// Key identifies the producing subscriber.
		Key    string
		Logger *slog.Logger
	}
)

// NewKafka creates a synchronous Kafka writer for the topic.
func NewKafka(opts KafkaOptions) *Kafka {
	w := &kafka.Writer{
		Addr:         kafka.TCP(opts.Brokers...),
		Topic:        opts.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return NewKafkaWithWriter(w, opts.Key, opts.Logger)
}

// NewKafkaWithWriter wraps an existing writer.
func NewKafkaWithWriter(
	w MessageWriter,
	key string,
	logger *slog.Logger,
) *Kafka {
	return &Kafka{writer: w, key: []byte(key), log: log.Wrap(logger)}
}

// Forward implements Sink.
func (k *Kafka) Forward(ctx context.Context, avg *sensor.Average) error {
	payload, err := wire.Marshal(avg)
	if err != nil {
		return err
	}

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   k.key,
		Value: payload,
		Headers: []kafka.Header{
			{Key: "publishers", Value: []byte(
				strconv.FormatUint(uint64(avg.Publishers), 10),
			)},
		},
	})
	if err != nil {
		k.log.Warn(ctx, err, slog.String("sink", "kafka"))
		return err
	}
	k.log.Debug(ctx, "average forwarded",
		slog.String("sink", "kafka"),
		slog.Any("temperature", avg.Temperature),
	)
	return nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
