// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package protocol_test

import (
	"context"
	"sync"

	"github.com/tempmesh/tempmesh/mqtt"
)

type (
	published struct {
		Topic   string
		Payload []byte
		Options mqtt.PublishOptions
	}

	// In-memory client that loops publishes back to matching subscribers.
	loopback struct {
		mu        sync.Mutex
		published []published
		handlers  map[string]mqtt.MessageHandler
		subQoS    map[string]mqtt.QoS
		failWith  error
	}
)

func newLoopback() *loopback {
	return &loopback{
		handlers: map[string]mqtt.MessageHandler{},
		subQoS:   map[string]mqtt.QoS{},
	}
}

func (l *loopback) Publish(
	ctx context.Context,
	topic string,
	payload []byte,
	opt ...mqtt.PublishOption,
) error {
	if l.failWith != nil {
		return l.failWith
	}

	var opts mqtt.PublishOptions
	opts.Apply(opt)

	l.mu.Lock()
	l.published = append(l.published, published{topic, payload, opts})
	l.mu.Unlock()

	l.inject(ctx, &mqtt.Message{
		Topic:    topic,
		Payload:  payload,
		QoS:      opts.QoS,
		Retained: opts.Retain,
	})
	return nil
}

func (l *loopback) Subscribe(
	_ context.Context,
	filter string,
	handler mqtt.MessageHandler,
	opt ...mqtt.SubscribeOption,
) error {
	if l.failWith != nil {
		return l.failWith
	}

	var opts mqtt.SubscribeOptions
	opts.Apply(opt)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[filter] = handler
	l.subQoS[filter] = opts.QoS
	return nil
}

func (l *loopback) inject(ctx context.Context, msg *mqtt.Message) {
	l.mu.Lock()
	var hs []mqtt.MessageHandler
	for filter, h := range l.handlers {
		if mqtt.IsTopicFilterMatch(filter, msg.Topic) {
			hs = append(hs, h)
		}
	}
	l.mu.Unlock()

	for _, h := range hs {
		h(ctx, msg)
	}
}
