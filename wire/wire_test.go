// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package wire_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tempmesh/tempmesh/wire"
	"google.golang.org/protobuf/encoding/protowire"
)

var (
	reading = wire.MustSchema("Reading",
		wire.Field{
			Tag:      1,
			Name:     "temperature",
			Kind:     wire.Fixed32Kind,
			Type:     wire.Float32,
			Required: true,
		},
		wire.Field{
			Tag:      2,
			Name:     "publisher_id",
			Kind:     wire.VarintKind,
			Type:     wire.Int32,
			Required: true,
		},
		wire.Field{
			Tag:      3,
			Name:     "time",
			Kind:     wire.VarintKind,
			Type:     wire.Uint64,
			Required: true,
		},
	)

	// Same fields as reading, declared in reverse.
	reversed = wire.MustSchema("Reading", reverse(reading.Fields())...)

	mixed = wire.MustSchema("Mixed",
		wire.Field{Tag: 1, Name: "a", Kind: wire.VarintKind, Type: wire.Sint32},
		wire.Field{Tag: 2, Name: "b", Kind: wire.VarintKind, Type: wire.Sint64},
		wire.Field{Tag: 3, Name: "c", Kind: wire.VarintKind, Type: wire.Bool},
		wire.Field{Tag: 4, Name: "d", Kind: wire.VarintKind, Type: wire.Uint32},
		wire.Field{Tag: 5, Name: "e", Kind: wire.VarintKind, Type: wire.Int64},
		wire.Field{Tag: 6, Name: "f", Kind: wire.Fixed32Kind, Type: wire.Fixed32},
		wire.Field{
			Tag:  700,
			Name: "g",
			Kind: wire.Fixed32Kind,
			Type: wire.Sfixed32,
		},
	)
)

func reverse(f []wire.Field) []wire.Field {
	out := make([]wire.Field, 0, len(f))
	for i := len(f) - 1; i >= 0; i-- {
		out = append(out, f[i])
	}
	return out
}

func readingValues(temp float32, id int32, ts uint64) wire.Values {
	return wire.Values{
		1: wire.Float32Value(temp),
		2: wire.Int32Value(id),
		3: wire.Uint64Value(ts),
	}
}

func requireKind(t *testing.T, err error, kind wire.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, kind, err.Error())
}

func TestEncodeKnownBytes(t *testing.T) {
	b, err := wire.Encode(reading, readingValues(25.5, 7, 86399))
	require.NoError(t, err)
	require.Equal(t, []byte{
		0x0d, 0x00, 0x00, 0xcc, 0x41,
		0x10, 0x07,
		0x18, 0xff, 0xa2, 0x05,
	}, b)
}

func TestRoundTrip(t *testing.T) {
	tests := []wire.Values{
		readingValues(0, 0, 0),
		readingValues(22.5, 1, 600),
		readingValues(-40.25, -1, 86399),
		readingValues(float32(math.MaxFloat32), math.MaxInt32, math.MaxUint64),
		readingValues(
			float32(math.SmallestNonzeroFloat32),
			math.MinInt32,
			1<<63,
		),
	}

	for _, in := range tests {
		b, err := wire.Encode(reading, in)
		require.NoError(t, err)

		out, err := wire.Decode(reading, b)
		require.NoError(t, err)
		require.Equal(t, in, out)
	}
}

func TestRoundTripMixedTypes(t *testing.T) {
	in := wire.Values{
		1: wire.Sint32Value(math.MinInt32),
		2: wire.Sint64Value(-3),
		3: wire.BoolValue(true),
		4: wire.Uint32Value(math.MaxUint32),
		5: wire.Int64Value(math.MinInt64),
		6: wire.Fixed32Value(0xdeadbeef),
		700: wire.Sfixed32Value(-12345),
	}

	b, err := wire.Encode(mixed, in)
	require.NoError(t, err)

	out, err := wire.Decode(mixed, b)
	require.NoError(t, err)
	require.Equal(t, in, out)
	require.Equal(t, int32(math.MinInt32), out[1].Int32())
	require.Equal(t, int32(-12345), out[700].Int32())
	require.True(t, out[3].Bool())

	// Optional fields may be absent.
	b, err = wire.Encode(mixed, wire.Values{3: wire.BoolValue(false)})
	require.NoError(t, err)
	out, err = wire.Decode(mixed, b)
	require.NoError(t, err)
	require.Equal(t, wire.Values{3: wire.BoolValue(false)}, out)
}

func TestFieldOrderIndependence(t *testing.T) {
	in := readingValues(19.75, 42, 43200)

	forward, err := wire.Encode(reading, in)
	require.NoError(t, err)
	backward, err := wire.Encode(reversed, in)
	require.NoError(t, err)
	require.NotEqual(t, forward, backward)

	for _, b := range [][]byte{forward, backward} {
		out, err := wire.Decode(reading, b)
		require.NoError(t, err)
		require.Equal(t, in, out)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	in := readingValues(21, 3, 1000)
	first, err := wire.Encode(reading, in)
	require.NoError(t, err)
	for range 20 {
		again, err := wire.Encode(reading, in)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestTruncation(t *testing.T) {
	b, err := wire.Encode(reading, readingValues(25.5, 7, 86399))
	require.NoError(t, err)

	// Cuts that land between fields leave required fields unseen; every
	// other cut ends inside a key or payload.
	boundaries := map[int]bool{0: true, 5: true, 7: true}

	for n := range len(b) {
		_, err := wire.Decode(reading, b[:n])
		if boundaries[n] {
			requireKind(t, err, wire.MissingRequiredField)
		} else {
			requireKind(t, err, wire.TruncatedInput)
		}
	}
}

func TestUnknownTags(t *testing.T) {
	b, err := wire.Encode(reading, readingValues(30, 2, 100))
	require.NoError(t, err)

	b = protowire.AppendTag(b, 9, protowire.VarintType)
	b = protowire.AppendVarint(b, 1<<50)
	b = protowire.AppendTag(b, 10, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, 7)
	b = protowire.AppendTag(b, 11, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("ignored"))
	b = protowire.AppendTag(b, 12, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, 1)

	out, err := wire.Decode(reading, b)
	require.NoError(t, err)
	require.Equal(t, readingValues(30, 2, 100), out)

	_, err = wire.Decode(reading, b, wire.WithRejectUnknown(true))
	requireKind(t, err, wire.UnknownTag)

	var e *wire.Error
	require.True(t, errors.As(err, &e))
	require.Equal(t, wire.Tag(9), e.Tag)
	require.Equal(t, 9, e.Offset)
}

func TestTruncatedUnknownField(t *testing.T) {
	b, err := wire.Encode(reading, readingValues(30, 2, 100))
	require.NoError(t, err)

	b = protowire.AppendTag(b, 11, protowire.BytesType)
	b = protowire.AppendVarint(b, 10)
	b = append(b, "short"...)

	_, err = wire.Decode(reading, b)
	requireKind(t, err, wire.TruncatedInput)
}

func TestMalformedVarint(t *testing.T) {
	b := []byte{0x10}
	for range 11 {
		b = append(b, 0xff)
	}
	b = append(b, 0x01)

	_, err := wire.Decode(reading, b)
	requireKind(t, err, wire.MalformedVarint)

	// The key itself can also be overlong.
	_, err = wire.Decode(reading, b[1:])
	requireKind(t, err, wire.MalformedVarint)
}

func TestMalformedKey(t *testing.T) {
	// Field number zero.
	_, err := wire.Decode(reading, []byte{0x00, 0x01})
	requireKind(t, err, wire.MalformedField)

	// Stray end-group marker on an unknown tag.
	b := protowire.AppendTag(nil, 20, protowire.EndGroupType)
	_, err = wire.Decode(reading, b)
	requireKind(t, err, wire.MalformedField)
}

func TestWireKindMismatch(t *testing.T) {
	b := protowire.AppendTag(nil, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, 25)

	_, err := wire.Decode(reading, b)
	requireKind(t, err, wire.WireKindMismatch)
}

func TestValueOutOfRange(t *testing.T) {
	tests := []struct {
		schema *wire.Schema
		tag    protowire.Number
		value  uint64
	}{
		{reading, 2, 1 << 40},
		{reading, 2, uint64(math.MaxInt32) + 1},
		// -1 written as a 32-bit two's complement varint.
		{reading, 2, math.MaxUint32},
		{mixed, 1, protowire.EncodeZigZag(math.MaxInt32 + 1)},
		{mixed, 3, 2},
		{mixed, 4, math.MaxUint32 + 1},
	}

	for _, test := range tests {
		b := protowire.AppendTag(nil, test.tag, protowire.VarintType)
		b = protowire.AppendVarint(b, test.value)
		_, err := wire.Decode(test.schema, b)
		requireKind(t, err, wire.ValueOutOfRange)
	}
}

func TestDuplicateTagKeepsLast(t *testing.T) {
	b, err := wire.Encode(reading, readingValues(30, 2, 100))
	require.NoError(t, err)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, 9)

	out, err := wire.Decode(reading, b)
	require.NoError(t, err)
	require.Equal(t, int32(9), out[2].Int32())
}

func TestEncodeErrors(t *testing.T) {
	_, err := wire.Encode(reading, wire.Values{
		1: wire.Float32Value(1),
		3: wire.Uint64Value(1),
	})
	requireKind(t, err, wire.MissingRequiredField)

	var e *wire.Error
	require.True(t, errors.As(err, &e))
	require.Equal(t, "publisher_id", e.Field)

	_, err = wire.Encode(reading, wire.Values{
		1: wire.Float32Value(1),
		2: wire.Int64Value(1),
		3: wire.Uint64Value(1),
	})
	requireKind(t, err, wire.TypeMismatch)

	values := readingValues(1, 1, 1)
	values[4] = wire.BoolValue(true)
	_, err = wire.Encode(reading, values)
	requireKind(t, err, wire.UnknownTag)
}

func TestSchemaValidation(t *testing.T) {
	_, err := wire.NewSchema("bad",
		wire.Field{Tag: 1, Kind: wire.VarintKind, Type: wire.Int32},
		wire.Field{Tag: 1, Kind: wire.VarintKind, Type: wire.Uint64},
	)
	requireKind(t, err, wire.InvalidSchema)

	_, err = wire.NewSchema("bad",
		wire.Field{Tag: 0, Kind: wire.VarintKind, Type: wire.Int32},
	)
	requireKind(t, err, wire.InvalidSchema)

	_, err = wire.NewSchema("bad",
		wire.Field{Tag: 1, Kind: wire.VarintKind, Type: wire.Float32},
	)
	requireKind(t, err, wire.UnsupportedFieldKind)

	_, err = wire.NewSchema("bad",
		wire.Field{Tag: 1, Kind: wire.Kind(2), Type: wire.Int32},
	)
	requireKind(t, err, wire.UnsupportedFieldKind)

	require.Panics(t, func() {
		wire.MustSchema("bad", wire.Field{Tag: -1})
	})
}

func TestErrorAttrs(t *testing.T) {
	_, err := wire.Decode(reading, []byte{0x0d, 0x00})
	var e *wire.Error
	require.True(t, errors.As(err, &e))

	keys := map[string]bool{}
	for _, a := range e.Attrs() {
		keys[a.Key] = true
	}
	require.True(t, keys["kind"])
	require.True(t, keys["field"])
	require.True(t, keys["offset"])
	require.Equal(t, "Reading: truncated input: temperature (tag 1)", e.Error())

	kind, ok := wire.KindOf(err)
	require.True(t, ok)
	require.Equal(t, wire.TruncatedInput, kind)
}
