// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package aggregate keeps the latest reading of each publisher and averages
// the ones that are still fresh. Timestamps are seconds within a day, so
// freshness is measured on a clock that wraps at midnight.
package aggregate

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/tempmesh/tempmesh/internal/log"
	"github.com/tempmesh/tempmesh/internal/options"
)

type (
	// Record is the last reading received from a publisher.
	Record struct {
		PublisherID int32
		Temperature float32
		// Time is the reading's second of the day, in [0, 86400).
		Time uint64
	}

	// Summary is the outcome of one averaging pass.
	Summary struct {
		// Mean is only meaningful when OK is set.
		Mean float32
		OK   bool

		Fresh   int
		Evicted []int32
	}

	// Aggregator holds one record per publisher. It is safe for concurrent
	// use; concurrent upserts for the same publisher resolve by arrival.
	Aggregator struct {
		records map[int32]Record
		window  uint64
		log     log.Logger
		mutex   sync.Mutex
	}

	// Option represents a single aggregator option.
	Option interface{ aggregator(*Options) }

	// Options are the resolved aggregator options.
	Options struct {
		Window uint64
		Logger *slog.Logger
	}

	// WithWindow sets the freshness window in seconds. A record is fresh when
	// it is at most this many seconds old.
	WithWindow uint64

	// This option is not used directly; see WithLogger below.
	withLogger struct{ *slog.Logger }
)

const (
	// SecondsPerDay is the modulus of reading timestamps.
	SecondsPerDay = 86400

	// DefaultWindow is ten minutes.
	DefaultWindow = 600
)

// New creates an empty aggregator.
func New(opt ...Option) *Aggregator {
	opts := Options{Window: DefaultWindow}
	opts.Apply(opt)

	return &Aggregator{
		records: map[int32]Record{},
		window:  opts.Window,
		log:     log.Wrap(opts.Logger),
	}
}

// Window returns the configured freshness window.
func (a *Aggregator) Window() uint64 {
	return a.window
}

// Upsert replaces the publisher's record. The timestamp is reduced modulo a
// day.
func (a *Aggregator) Upsert(publisherID int32, temperature float32, t uint64) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.records[publisherID] = Record{
		PublisherID: publisherID,
		Temperature: temperature,
		Time:        t % SecondsPerDay,
	}
}

// Average returns the mean temperature of the fresh records at now, using
// the configured window. Stale records are evicted. The second result is false
// when no record is fresh.
func (a *Aggregator) Average(now uint64) (float32, bool) {
	s := a.Sweep(now, a.window)
	return s.Mean, s.OK
}

// AverageWithin is Average with an explicit window.
func (a *Aggregator) AverageWithin(now, window uint64) (float32, bool) {
	s := a.Sweep(now, window)
	return s.Mean, s.OK
}

// Sweep performs one averaging pass: every record older than window seconds
// at now is removed, and the rest are averaged.
func (a *Aggregator) Sweep(now, window uint64) Summary {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	now %= SecondsPerDay

	var sum float64
	var s Summary
	for id, r := range a.records {
		if Age(now, r.Time) > window {
			s.Evicted = append(s.Evicted, id)
			delete(a.records, id)
			continue
		}
		sum += float64(r.Temperature)
		s.Fresh++
	}
	slices.Sort(s.Evicted)

	if s.Fresh > 0 {
		s.Mean = float32(sum / float64(s.Fresh))
		s.OK = true
	}

	if len(s.Evicted) > 0 {
		a.log.Debug(context.Background(), "evicted stale publishers",
			slog.Any("publishers", s.Evicted),
			slog.Uint64("now", now),
			slog.Uint64("window", window),
		)
	}
	return s
}

// Snapshot returns the current records sorted by publisher. It does not
// evict.
func (a *Aggregator) Snapshot() []Record {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	out := make([]Record, 0, len(a.records))
	for _, r := range a.records {
		out = append(out, r)
	}
	slices.SortFunc(out, func(x, y Record) int {
		return cmp.Compare(x.PublisherID, y.PublisherID)
	})
	return out
}

// Len returns the number of records held.
func (a *Aggregator) Len() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return len(a.records)
}

// Age returns how many seconds before now the day-relative time t lies,
// assuming it was recorded within the last day.
func Age(now, t uint64) uint64 {
	now %= SecondsPerDay
	t %= SecondsPerDay
	if now >= t {
		return now - t
	}
	return now + SecondsPerDay - t
}

// Apply resolves the provided list of options.
func (o *Options) Apply(opts []Option, rest ...Option) {
	for opt := range options.Apply[Option](opts, rest...) {
		opt.aggregator(o)
	}
}

func (o *Options) aggregator(opt *Options) {
	if o != nil {
		*opt = *o
	}
}

func (o WithWindow) aggregator(opt *Options) {
	opt.Window = uint64(o)
}

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) Option {
	return withLogger{logger}
}

func (o withLogger) aggregator(opt *Options) {
	opt.Logger = o.Logger
}
