// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package clock

import (
	"sync"
	"time"
)

// Frozen is a WallClock whose Now only moves when told to. Timers still run on
// real time. It is meant for tests that install it as Instance.
type Frozen struct {
	mu  sync.Mutex
	now time.Time
}

// NewFrozen creates a frozen clock reading t.
func NewFrozen(t time.Time) *Frozen {
	return &Frozen{now: t}
}

// Install sets f as Instance and returns a function restoring the previous
// instance.
func (f *Frozen) Install() (restore func()) {
	prev := Instance
	Instance = f
	return func() { Instance = prev }
}

// Set moves the clock to t.
func (f *Frozen) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

// Advance moves the clock forward by d.
func (f *Frozen) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Now implements WallClock.
func (f *Frozen) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After implements WallClock.
func (*Frozen) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// NewTimer implements WallClock.
func (*Frozen) NewTimer(d time.Duration) Timer {
	return timer{Timer: time.NewTimer(d)}
}
