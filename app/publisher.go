// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tempmesh/tempmesh/clock"
	"github.com/tempmesh/tempmesh/device"
	"github.com/tempmesh/tempmesh/internal/log"
	"github.com/tempmesh/tempmesh/protocol"
	"github.com/tempmesh/tempmesh/sensor"
)

type (
	// PublisherOptions configure a Publisher.
	PublisherOptions struct {
		ID       int32
		Source   device.Source
		Interval time.Duration

		// Clock stamps each reading. A *clock.Beacon is kept in sync with
		// the TimeOfDay messages received on TimeTopic.
		Clock clock.Source

		ReadingsTopic string
		TimeTopic     string

		Logger *slog.Logger
	}

	// Publisher periodically sends the temperature read from its source.
	Publisher struct {
		id        int32
		source    device.Source
		clock     clock.Source
		beacon    *clock.Beacon
		interval  time.Duration
		transport Transport

		sender *protocol.TelemetrySender[sensor.Reading]
		time   *protocol.TelemetryReceiver[sensor.TimeOfDay]

		log log.Logger
	}
)

// NewPublisher creates a publisher on the transport.
func NewPublisher(t Transport, opts PublisherOptions) (*Publisher, error) {
	if opts.Source == nil {
		return nil, errors.New("publisher requires a temperature source")
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Interval <= 0 {
		return nil, errors.New("publisher interval must be positive")
	}

	p := &Publisher{
		id:        opts.ID,
		source:    opts.Source,
		clock:     opts.Clock,
		interval:  opts.Interval,
		transport: t,
		log:       log.Wrap(opts.Logger),
	}

	var err error
	p.sender, err = protocol.NewTelemetrySender(
		t,
		protocol.Wire[sensor.Reading, *sensor.Reading]{},
		opts.ReadingsTopic,
		protocol.WithLogger(opts.Logger),
	)
	if err != nil {
		return nil, err
	}

	if b, ok := opts.Clock.(*clock.Beacon); ok {
		p.beacon = b
		p.time, err = protocol.NewTelemetryReceiver(
			t,
			protocol.Wire[sensor.TimeOfDay, *sensor.TimeOfDay]{},
			opts.TimeTopic,
			p.onTime,
			protocol.WithLogger(opts.Logger),
		)
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Start subscribes to clock beacons when the publisher follows one.
func (p *Publisher) Start(ctx context.Context) error {
	if p.time == nil {
		return nil
	}
	return p.time.Start(ctx)
}

// Publish polls for beacons, then reads and sends one reading.
func (p *Publisher) Publish(ctx context.Context) (sensor.Reading, error) {
	if _, err := p.transport.Poll(ctx); err != nil {
		return sensor.Reading{}, err
	}

	temp, err := p.source.ReadTemperatureCelsius(ctx)
	if err != nil {
		return sensor.Reading{}, err
	}

	r := sensor.Reading{
		Temperature: temp,
		PublisherID: p.id,
		Time:        p.clock.NowDaySeconds(),
	}
	if err := p.sender.Send(ctx, r); err != nil {
		return r, err
	}

	h, m, s := clock.HMS(r.Time)
	p.log.Info(ctx, "published",
		slog.Int("publisher_id", int(r.PublisherID)),
		slog.Any("temperature", r.Temperature),
		slog.Int("hour", int(h)),
		slog.Int("minute", int(m)),
		slog.Int("second", int(s)),
	)
	return r, nil
}

// Run publishes every interval until ctx is done. Failed sends are logged
// and retried on the next tick.
func (p *Publisher) Run(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}
	for {
		if _, err := p.Publish(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.log.Warn(ctx, err)
		}
		if err := clock.Sleep(ctx, p.interval); err != nil {
			return nil
		}
	}
}

func (p *Publisher) onTime(
	ctx context.Context,
	msg *protocol.TelemetryMessage[sensor.TimeOfDay],
) error {
	tod := msg.Payload
	if err := p.beacon.Sync(tod.Hour, tod.Minute, tod.Second); err != nil {
		return err
	}
	p.log.Debug(ctx, "clock synced",
		slog.Uint64("day_seconds", tod.Seconds()))
	return nil
}
