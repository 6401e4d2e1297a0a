// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package app_test

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tempmesh/tempmesh/mqtt"
)

type (
	// In-memory transport. Published messages are queued and handed to the
	// matching handlers on the next Poll, like the MQTT client does.
	bus struct {
		mu       sync.Mutex
		queue    []*mqtt.Message
		handlers []route
		sent     []*mqtt.Message
	}

	route struct {
		filter  string
		handler mqtt.MessageHandler
	}

	daySeconds struct{ atomic.Uint64 }
)

func (b *bus) Publish(
	_ context.Context,
	topic string,
	payload []byte,
	opt ...mqtt.PublishOption,
) error {
	var opts mqtt.PublishOptions
	opts.Apply(opt)

	msg := &mqtt.Message{
		Topic:    topic,
		Payload:  payload,
		QoS:      opts.QoS,
		Retained: opts.Retain,
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, msg)
	b.queue = append(b.queue, msg)
	return nil
}

func (b *bus) Subscribe(
	_ context.Context,
	filter string,
	handler mqtt.MessageHandler,
	_ ...mqtt.SubscribeOption,
) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, route{filter, handler})
	return nil
}

func (b *bus) Poll(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b.mu.Lock()
	queue := b.queue
	b.queue = nil
	routes := append([]route(nil), b.handlers...)
	b.mu.Unlock()

	for _, msg := range queue {
		for _, r := range routes {
			if mqtt.IsTopicFilterMatch(r.filter, msg.Topic) {
				r.handler(ctx, msg)
			}
		}
	}
	return len(queue), nil
}

func (b *bus) inject(topic string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, &mqtt.Message{Topic: topic, Payload: payload})
}

func (b *bus) sentOn(topic string) []*mqtt.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*mqtt.Message
	for _, m := range b.sent {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (d *daySeconds) NowDaySeconds() uint64   { return d.Load() }
func (d *daySeconds) NowEpochSeconds() uint64 { return d.Load() }
