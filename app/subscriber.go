// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tempmesh/tempmesh/aggregate"
	"github.com/tempmesh/tempmesh/clock"
	"github.com/tempmesh/tempmesh/device"
	"github.com/tempmesh/tempmesh/httpapi"
	"github.com/tempmesh/tempmesh/internal/log"
	"github.com/tempmesh/tempmesh/metrics"
	"github.com/tempmesh/tempmesh/protocol"
	"github.com/tempmesh/tempmesh/sensor"
	"github.com/tempmesh/tempmesh/sink"
	"github.com/tempmesh/tempmesh/wire"
)

type (
	// SubscriberOptions configure a Subscriber.
	SubscriberOptions struct {
		// Window is the freshness window in seconds.
		Window   uint64
		Interval time.Duration
		Clock    clock.Source

		ReadingsTopic string
		// AverageTopic and TimeTopic are optional; nothing is published on
		// them when empty.
		AverageTopic string
		TimeTopic    string

		Indicator device.Indicator
		// Threshold defaults to device.DefaultThreshold when nil.
		Threshold *device.Threshold
		Sinks     []sink.Sink
		Metrics   *metrics.Metrics

		Logger *slog.Logger
	}

	// Subscriber receives readings, keeps the latest per publisher and
	// reports the average of the fresh ones once per cycle.
	Subscriber struct {
		transport Transport
		agg       *aggregate.Aggregator
		clock     clock.Source
		interval  time.Duration
		window    uint64

		readings *protocol.TelemetryReceiver[sensor.Reading]
		averages *protocol.TelemetrySender[sensor.Average]
		beacon   *protocol.TelemetrySender[sensor.TimeOfDay]

		indicator device.Indicator
		threshold device.Threshold
		sinks     []sink.Sink
		metrics   *metrics.Metrics

		mu     sync.RWMutex
		status httpapi.Status

		log log.Logger
	}
)

// NewSubscriber creates a subscriber on the transport.
func NewSubscriber(t Transport, opts SubscriberOptions) (*Subscriber, error) {
	if opts.Interval <= 0 {
		return nil, errors.New("subscriber interval must be positive")
	}
	if opts.Window == 0 {
		opts.Window = aggregate.DefaultWindow
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	threshold := device.DefaultThreshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}

	s := &Subscriber{
		transport: t,
		agg: aggregate.New(
			aggregate.WithWindow(opts.Window),
			aggregate.WithLogger(opts.Logger),
		),
		clock:     opts.Clock,
		interval:  opts.Interval,
		window:    opts.Window,
		indicator: opts.Indicator,
		threshold: threshold,
		sinks:     opts.Sinks,
		metrics:   opts.Metrics,
		log:       log.Wrap(opts.Logger),
	}

	var err error
	s.readings, err = protocol.NewTelemetryReceiver(
		t,
		protocol.Wire[sensor.Reading, *sensor.Reading]{},
		opts.ReadingsTopic,
		s.onReading,
		protocol.WithDropHandler(s.onDrop),
		protocol.WithLogger(opts.Logger),
	)
	if err != nil {
		return nil, err
	}

	if opts.AverageTopic != "" {
		s.averages, err = protocol.NewTelemetrySender(
			t,
			protocol.Wire[sensor.Average, *sensor.Average]{},
			opts.AverageTopic,
			protocol.WithLogger(opts.Logger),
		)
		if err != nil {
			return nil, err
		}
	}

	if opts.TimeTopic != "" {
		s.beacon, err = protocol.NewTelemetrySender(
			t,
			protocol.Wire[sensor.TimeOfDay, *sensor.TimeOfDay]{},
			opts.TimeTopic,
			protocol.WithLogger(opts.Logger),
		)
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Aggregator returns the subscriber's aggregator.
func (s *Subscriber) Aggregator() *aggregate.Aggregator {
	return s.agg
}

// Start subscribes to readings.
func (s *Subscriber) Start(ctx context.Context) error {
	return s.readings.Start(ctx)
}

// Cycle runs one pass of the loop: it handles every buffered reading, then
// averages the fresh ones and reports the result. Only a failed poll is
// returned; reporting failures are logged.
func (s *Subscriber) Cycle(ctx context.Context) (aggregate.Summary, error) {
	start := clock.Instance.Now()

	if _, err := s.transport.Poll(ctx); err != nil {
		return aggregate.Summary{}, err
	}

	now := s.clock.NowDaySeconds()
	sum := s.agg.Sweep(now, s.window)

	for _, id := range sum.Evicted {
		s.log.Info(ctx, "removed stale publisher",
			slog.Int("publisher_id", int(id)))
	}
	s.metrics.ObserveAverage(sum.Mean, sum.OK, sum.Fresh, len(sum.Evicted))

	if sum.OK {
		s.log.Info(ctx, "average temperature",
			slog.Any("temperature", sum.Mean),
			slog.Int("publishers", sum.Fresh),
		)
		s.report(ctx, &sensor.Average{
			Temperature: sum.Mean,
			Publishers:  uint32(sum.Fresh),
			Time:        now,
		})
	}

	if s.beacon != nil {
		h, m, sec := clock.HMS(now)
		if err := s.beacon.Send(ctx, sensor.TimeOfDay{
			Hour:   h,
			Minute: m,
			Second: sec,
		}); err != nil {
			s.log.Warn(ctx, err)
		}
	}

	s.mu.Lock()
	s.status = httpapi.Status{
		Mean:    sum.Mean,
		OK:      sum.OK,
		Now:     now,
		Cycles:  s.status.Cycles + 1,
		Evicted: sum.Evicted,
		Records: s.agg.Snapshot(),
	}
	s.mu.Unlock()

	s.metrics.Cycles.Inc()
	s.metrics.CycleTime.Observe(clock.Since(start).Seconds())
	return sum, nil
}

func (s *Subscriber) report(ctx context.Context, avg *sensor.Average) {
	if s.indicator != nil {
		if err := s.indicator.SetIndicator(
			ctx, s.threshold.On(avg.Temperature),
		); err != nil {
			s.log.Warn(ctx, err, slog.String("output", "indicator"))
		}
	}
	if s.averages != nil {
		if err := s.averages.Send(ctx, *avg); err != nil {
			s.log.Warn(ctx, err)
		}
	}
	for _, k := range s.sinks {
		if err := k.Forward(ctx, avg); err != nil {
			s.log.Warn(ctx, err, slog.String("output", "sink"))
		}
	}
}

// Run starts the subscriber and cycles every interval until ctx is done.
func (s *Subscriber) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	for {
		if _, err := s.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := clock.Sleep(ctx, s.interval); err != nil {
			return nil
		}
	}
}

// Status implements httpapi.StatusSource.
func (s *Subscriber) Status() httpapi.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Subscriber) onReading(
	ctx context.Context,
	msg *protocol.TelemetryMessage[sensor.Reading],
) error {
	r := msg.Payload
	s.agg.Upsert(r.PublisherID, r.Temperature, r.Time)
	s.metrics.Received.Inc()
	s.log.Debug(ctx, "received",
		slog.Int("publisher_id", int(r.PublisherID)),
		slog.Any("temperature", r.Temperature),
		slog.Uint64("time", r.Time),
	)
	return nil
}

func (s *Subscriber) onDrop(_ string, err error) {
	reason := "invalid"
	if kind, ok := wire.KindOf(err); ok {
		reason = kind.String()
	}
	s.metrics.Dropped.WithLabelValues(reason).Inc()
}
