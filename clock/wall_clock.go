// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package clock

import (
	"context"
	"time"
)

type (
	// WallClock is the part of package time the loops and loggers use. Tests
	// replace Instance to control what Now returns.
	WallClock interface {
		After(d time.Duration) <-chan time.Time
		NewTimer(d time.Duration) Timer
		Now() time.Time
	}

	// Timer is the part of time.Timer a WallClock hands out.
	Timer interface {
		C() <-chan time.Time
		Reset(d time.Duration) bool
		Stop() bool
	}

	system struct{}

	timer struct{ *time.Timer }
)

// Instance is the process-wide WallClock.
var Instance WallClock = system{}

func (system) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (system) NewTimer(d time.Duration) Timer {
	return timer{time.NewTimer(d)}
}

func (system) Now() time.Time { return time.Now() }

func (t timer) C() <-chan time.Time { return t.Timer.C }

// Since returns the time elapsed on Instance since t.
func Since(t time.Time) time.Duration {
	return Instance.Now().Sub(t)
}

// Sleep waits for d on an Instance timer. It returns early with the context's
// error when ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	t := Instance.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	}
}
