// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/tempmesh/tempmesh/clock"
	"github.com/tempmesh/tempmesh/internal/log"
)

type (
	// Task is a single attempt of a retried operation. It reports whether a
	// failure is worth retrying.
	Task = func(context.Context) (shouldRetry bool, err error)

	// Policy runs a task until it succeeds or the policy gives up.
	Policy interface {
		Start(ctx context.Context, name string, task Task) error
	}

	// Backoff retries with exponentially growing, jittered intervals.
	Backoff struct {
		// MaxAttempts of 0 means unlimited; 1 disables retries.
		MaxAttempts uint64

		// MinInterval defaults to 1/8s.
		MinInterval time.Duration

		// MaxInterval defaults to 30s.
		MaxInterval time.Duration

		// Timeout bounds all attempts together when non-zero.
		Timeout time.Duration

		NoJitter bool

		Logger *slog.Logger
	}
)

// Start runs the task under the backoff policy.
func (b *Backoff) Start(ctx context.Context, name string, task Task) error {
	if b.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}

	l := log.Wrap(b.Logger)

	for attempt := uint64(1); ; attempt++ {
		l.Debug(ctx, "attempt",
			slog.String("task", name),
			slog.Uint64("attempt", attempt),
		)
		retry, err := task(ctx)
		if err == nil {
			return nil
		}

		interval := b.interval(ctx, attempt, retry)
		if interval == 0 {
			l.Warn(ctx, err,
				slog.String("task", name),
				slog.Uint64("attempt", attempt),
			)
			return err
		}

		l.Info(ctx, "retrying",
			slog.String("task", name),
			slog.Uint64("attempt", attempt),
			slog.Duration("interval", interval),
			slog.String("error", err.Error()),
		)

		select {
		case <-clock.Instance.After(interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Zero means stop retrying.
func (b *Backoff) interval(
	ctx context.Context,
	attempt uint64,
	retry bool,
) time.Duration {
	switch {
	case !retry,
		attempt == b.MaxAttempts,
		ctx.Err() != nil:
		return 0
	}

	minInterval := b.MinInterval
	if minInterval == 0 {
		minInterval = time.Second / 8
	}

	maxInterval := b.MaxInterval
	if maxInterval == 0 {
		maxInterval = 30 * time.Second
	}

	factor := math.Pow(2, min(
		float64(attempt-1),
		math.Log2(float64(maxInterval)/float64(minInterval)),
	))
	if !b.NoJitter {
		// Between 95% and 105% of the base.
		// #nosec G404
		j := rand.New(rand.NewSource(clock.Instance.Now().UnixNano()))
		factor *= .95 + .1*j.Float64()
	}

	return time.Duration(factor * float64(minInterval))
}
