// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package device provides the temperature sources read by publishers and the
// indicators driven by the subscriber.
package device

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
)

type (
	// Source reads the current temperature.
	Source interface {
		ReadTemperatureCelsius(context.Context) (float32, error)
	}

	// Constant always reads the same temperature.
	Constant float32

	// Simulated is a bounded random walk.
	Simulated struct {
		// Start is the first reading.
		Start float64
		// Step bounds the change between two readings.
		Step float64
		// Min and Max clamp the walk. They are ignored when equal.
		Min, Max float64

		mu      sync.Mutex
		rng     *rand.Rand
		current float64
		started bool
	}
)

// ReadTemperatureCelsius implements Source.
func (c Constant) ReadTemperatureCelsius(context.Context) (float32, error) {
	return float32(c), nil
}

// NewSimulated creates a random walk starting at start and moving at most
// step degrees per reading, clamped to [min, max]. The seed makes the walk
// reproducible.
func NewSimulated(start, step, minC, maxC float64, seed uint64) *Simulated {
	return &Simulated{
		Start: start,
		Step:  step,
		Min:   minC,
		Max:   maxC,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// ReadTemperatureCelsius implements Source.
func (s *Simulated) ReadTemperatureCelsius(
	ctx context.Context,
) (float32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.started = true
		s.current = s.clamp(s.Start)
		return float32(s.current), nil
	}

	var r float64
	if s.rng != nil {
		r = s.rng.Float64()
	} else {
		r = rand.Float64()
	}
	s.current = s.clamp(s.current + (2*r-1)*s.Step)
	return float32(s.current), nil
}

func (s *Simulated) clamp(v float64) float64 {
	if s.Min == s.Max {
		return v
	}
	return math.Max(s.Min, math.Min(s.Max, v))
}
