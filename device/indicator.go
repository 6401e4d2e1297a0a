// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package device

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tempmesh/tempmesh/internal/log"
	"github.com/tempmesh/tempmesh/mqtt"
)

type (
	// Indicator is a binary output, such as an LED.
	Indicator interface {
		SetIndicator(context.Context, bool) error
	}

	// Publisher sends a payload on a topic.
	Publisher interface {
		Publish(context.Context, string, []byte, ...mqtt.PublishOption) error
	}

	// LogIndicator logs every change of state.
	LogIndicator struct {
		log   log.Logger
		mu    sync.Mutex
		state *bool
	}

	// TopicIndicator publishes "1" or "0" as a retained message whenever the
	// state changes.
	TopicIndicator struct {
		client Publisher
		topic  string
		mu     sync.Mutex
		state  *bool
	}

	// Threshold turns an average into an indicator state.
	Threshold float32
)

// DefaultThreshold is the temperature above which the indicator is lit.
const DefaultThreshold Threshold = 25

// On reports whether the average is above the threshold.
func (t Threshold) On(average float32) bool {
	return average > float32(t)
}

// NewLogIndicator creates an indicator that logs to the given logger.
func NewLogIndicator(logger *slog.Logger) *LogIndicator {
	return &LogIndicator{log: log.Wrap(logger)}
}

// SetIndicator implements Indicator.
func (i *LogIndicator) SetIndicator(ctx context.Context, on bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state != nil && *i.state == on {
		return nil
	}
	i.state = &on
	i.log.Info(ctx, "indicator changed", slog.Bool("on", on))
	return nil
}

// State returns the last state set and whether one has been set.
func (i *LogIndicator) State() (on, set bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state == nil {
		return false, false
	}
	return *i.state, true
}

// NewTopicIndicator creates an indicator that publishes on the topic.
func NewTopicIndicator(
	client Publisher,
	topic string,
) (*TopicIndicator, error) {
	if err := mqtt.ValidateTopicName(topic); err != nil {
		return nil, err
	}
	return &TopicIndicator{client: client, topic: topic}, nil
}

// SetIndicator implements Indicator.
func (i *TopicIndicator) SetIndicator(ctx context.Context, on bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state != nil && *i.state == on {
		return nil
	}

	payload := []byte("0")
	if on {
		payload = []byte("1")
	}
	if err := i.client.Publish(
		ctx, i.topic, payload, mqtt.WithRetain(true),
	); err != nil {
		return err
	}
	i.state = &on
	return nil
}
