// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package sensor defines the messages exchanged between temperature
// publishers and the aggregating subscriber.
package sensor

import (
	"fmt"

	"github.com/tempmesh/tempmesh/wire"
)

type (
	// Reading is a single temperature sample from one publisher. Time is the
	// publisher's day-relative second when the sample was taken.
	Reading struct {
		Temperature float32
		PublisherID int32
		Time        uint64
	}

	// TimeOfDay is the clock beacon the subscriber broadcasts so publishers
	// can align their day-relative clocks with it.
	TimeOfDay struct {
		Hour   int32
		Minute int32
		Second int32
	}

	// Average is the result of one averaging pass.
	Average struct {
		Temperature float32
		Publishers  uint32
		Time        uint64
	}
)

// Field tags shared by the messages.
const (
	TemperatureTag wire.Tag = 1
	PublisherIDTag wire.Tag = 2
	TimeTag        wire.Tag = 3

	HourTag   wire.Tag = 1
	MinuteTag wire.Tag = 2
	SecondTag wire.Tag = 3

	PublishersTag wire.Tag = 2
)

var (
	// ReadingSchema is the wire layout of Reading.
	ReadingSchema = wire.MustSchema("SensorMessage",
		wire.Field{
			Tag:      TemperatureTag,
			Name:     "temperature",
			Kind:     wire.Fixed32Kind,
			Type:     wire.Float32,
			Required: true,
		},
		wire.Field{
			Tag:      PublisherIDTag,
			Name:     "publisher_id",
			Kind:     wire.VarintKind,
			Type:     wire.Int32,
			Required: true,
		},
		wire.Field{
			Tag:      TimeTag,
			Name:     "time",
			Kind:     wire.VarintKind,
			Type:     wire.Uint64,
			Required: true,
		},
	)

	// TimeOfDaySchema is the wire layout of TimeOfDay.
	TimeOfDaySchema = wire.MustSchema("TimeMessage",
		wire.Field{
			Tag:      HourTag,
			Name:     "hour",
			Kind:     wire.VarintKind,
			Type:     wire.Int32,
			Required: true,
		},
		wire.Field{
			Tag:      MinuteTag,
			Name:     "minute",
			Kind:     wire.VarintKind,
			Type:     wire.Int32,
			Required: true,
		},
		wire.Field{
			Tag:      SecondTag,
			Name:     "second",
			Kind:     wire.VarintKind,
			Type:     wire.Int32,
			Required: true,
		},
	)

	// AverageSchema is the wire layout of Average.
	AverageSchema = wire.MustSchema("AverageMessage",
		wire.Field{
			Tag:      TemperatureTag,
			Name:     "temperature",
			Kind:     wire.Fixed32Kind,
			Type:     wire.Float32,
			Required: true,
		},
		wire.Field{
			Tag:      PublishersTag,
			Name:     "publishers",
			Kind:     wire.VarintKind,
			Type:     wire.Uint32,
			Required: true,
		},
		wire.Field{
			Tag:      TimeTag,
			Name:     "time",
			Kind:     wire.VarintKind,
			Type:     wire.Uint64,
			Required: true,
		},
	)
)

// Schema implements wire.Message.
func (*Reading) Schema() *wire.Schema { return ReadingSchema }

// Fields implements wire.Message.
func (r *Reading) Fields() wire.Values {
	return wire.Values{
		TemperatureTag: wire.Float32Value(r.Temperature),
		PublisherIDTag: wire.Int32Value(r.PublisherID),
		TimeTag:        wire.Uint64Value(r.Time),
	}
}

// SetFields implements wire.Message.
func (r *Reading) SetFields(v wire.Values) error {
	*r = Reading{
		Temperature: v[TemperatureTag].Float32(),
		PublisherID: v[PublisherIDTag].Int32(),
		Time:        v[TimeTag].Uint64(),
	}
	return nil
}

func (r Reading) String() string {
	return fmt.Sprintf(
		"publisher %d: %.2f at %d", r.PublisherID, r.Temperature, r.Time,
	)
}

// Schema implements wire.Message.
func (*TimeOfDay) Schema() *wire.Schema { return TimeOfDaySchema }

// Fields implements wire.Message.
func (t *TimeOfDay) Fields() wire.Values {
	return wire.Values{
		HourTag:   wire.Int32Value(t.Hour),
		MinuteTag: wire.Int32Value(t.Minute),
		SecondTag: wire.Int32Value(t.Second),
	}
}

// SetFields implements wire.Message. Values outside a 24-hour clock are
// rejected with wire.ValueOutOfRange.
func (t *TimeOfDay) SetFields(v wire.Values) error {
	tod := TimeOfDay{
		Hour:   v[HourTag].Int32(),
		Minute: v[MinuteTag].Int32(),
		Second: v[SecondTag].Int32(),
	}
	if err := tod.Validate(); err != nil {
		return err
	}
	*t = tod
	return nil
}

// Validate checks that the time lies on a 24-hour clock.
func (t TimeOfDay) Validate() error {
	check := func(tag wire.Tag, name string, v, limit int32) error {
		if v < 0 || v >= limit {
			return &wire.Error{
				Kind:    wire.ValueOutOfRange,
				Message: fmt.Sprintf("%d not in [0, %d)", v, limit),
				Schema:  TimeOfDaySchema.Name(),
				Tag:     tag,
				Field:   name,
				Offset:  -1,
			}
		}
		return nil
	}
	if err := check(HourTag, "hour", t.Hour, 24); err != nil {
		return err
	}
	if err := check(MinuteTag, "minute", t.Minute, 60); err != nil {
		return err
	}
	return check(SecondTag, "second", t.Second, 60)
}

// Seconds returns the time as seconds since midnight.
func (t TimeOfDay) Seconds() uint64 {
	return uint64(t.Hour)*3600 + uint64(t.Minute)*60 + uint64(t.Second)
}

// Schema implements wire.Message.
func (*Average) Schema() *wire.Schema { return AverageSchema }

// Fields implements wire.Message.
func (a *Average) Fields() wire.Values {
	return wire.Values{
		TemperatureTag: wire.Float32Value(a.Temperature),
		PublishersTag:  wire.Uint32Value(a.Publishers),
		TimeTag:        wire.Uint64Value(a.Time),
	}
}

// SetFields implements wire.Message.
func (a *Average) SetFields(v wire.Values) error {
	*a = Average{
		Temperature: v[TemperatureTag].Float32(),
		Publishers:  v[PublishersTag].Uint32(),
		Time:        v[TimeTag].Uint64(),
	}
	return nil
}
