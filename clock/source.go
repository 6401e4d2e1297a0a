// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package clock

import (
	"fmt"
	"sync"
	"time"

	"github.com/relvacode/iso8601"
)

// SecondsPerDay is the period of the day-cyclic clock.
const SecondsPerDay = 24 * 60 * 60

type (
	// Source provides the current time in the forms the publishers and the
	// aggregator exchange.
	Source interface {
		// NowDaySeconds returns seconds since local midnight, in [0, 86400).
		NowDaySeconds() uint64
		// NowEpochSeconds returns seconds since the Unix epoch.
		NowEpochSeconds() uint64
	}

	// System reads the wall clock in a fixed location.
	System struct {
		Location *time.Location
	}

	// Fixed starts at a given instant and advances with the wall clock from
	// the moment it was created.
	Fixed struct {
		start   time.Time
		created time.Time
		loc     *time.Location
	}

	// Beacon follows a remote day-relative clock. It measures the offset
	// between the local wall clock and the last beacon it was synced to.
	Beacon struct {
		base   System
		mu     sync.RWMutex
		offset time.Duration
		synced bool
	}
)

// DaySeconds returns hour*3600 + minute*60 + second of t in its location.
func DaySeconds(t time.Time) uint64 {
	h, m, s := t.Clock()
	return uint64(h*3600 + m*60 + s)
}

// EpochSeconds returns t as seconds since the Unix epoch, clamped at zero.
func EpochSeconds(t time.Time) uint64 {
	if s := t.Unix(); s > 0 {
		return uint64(s)
	}
	return 0
}

// HMS splits day seconds into hour, minute and second.
func HMS(daySeconds uint64) (hour, minute, second int32) {
	daySeconds %= SecondsPerDay
	return int32(daySeconds / 3600),
		int32(daySeconds / 60 % 60),
		int32(daySeconds % 60)
}

func (s System) now() time.Time {
	now := Instance.Now()
	if s.Location != nil {
		now = now.In(s.Location)
	}
	return now
}

// NowDaySeconds implements Source.
func (s System) NowDaySeconds() uint64 {
	return DaySeconds(s.now())
}

// NowEpochSeconds implements Source.
func (s System) NowEpochSeconds() uint64 {
	return EpochSeconds(s.now())
}

// NewFixed parses an ISO 8601 start time. The day seconds it reports are taken
// in the start time's own offset.
func NewFixed(start string) (*Fixed, error) {
	t, err := iso8601.ParseString(start)
	if err != nil {
		return nil, fmt.Errorf("invalid fixed clock start %q: %w", start, err)
	}
	return &Fixed{start: t, created: Instance.Now(), loc: t.Location()}, nil
}

func (f *Fixed) now() time.Time {
	return f.start.Add(Instance.Now().Sub(f.created)).In(f.loc)
}

// NowDaySeconds implements Source.
func (f *Fixed) NowDaySeconds() uint64 {
	return DaySeconds(f.now())
}

// NowEpochSeconds implements Source.
func (f *Fixed) NowEpochSeconds() uint64 {
	return EpochSeconds(f.now())
}

// NewBeacon creates a beacon clock that behaves like the system clock in loc
// until the first sync.
func NewBeacon(loc *time.Location) *Beacon {
	return &Beacon{base: System{Location: loc}}
}

// Sync aligns the clock so that it currently reads the given time of day. The
// smallest offset is chosen, so a beacon a few seconds across midnight is
// treated as a small skew rather than most of a day.
func (b *Beacon) Sync(hour, minute, second int32) error {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 ||
		second < 0 || second > 59 {
		return fmt.Errorf(
			"invalid time of day %02d:%02d:%02d",
			hour, minute, second,
		)
	}

	remote := int64(hour)*3600 + int64(minute)*60 + int64(second)
	local := int64(b.base.NowDaySeconds())

	diff := ((remote-local)%SecondsPerDay + SecondsPerDay) % SecondsPerDay
	if diff >= SecondsPerDay/2 {
		diff -= SecondsPerDay
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.offset = time.Duration(diff) * time.Second
	b.synced = true
	return nil
}

// Synced reports whether a beacon has been received.
func (b *Beacon) Synced() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.synced
}

func (b *Beacon) now() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.base.now().Add(b.offset)
}

// NowDaySeconds implements Source.
func (b *Beacon) NowDaySeconds() uint64 {
	return DaySeconds(b.now())
}

// NowEpochSeconds implements Source.
func (b *Beacon) NowEpochSeconds() uint64 {
	return EpochSeconds(b.now())
}
