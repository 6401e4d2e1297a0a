// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package wire

import (
	"fmt"
	"math"
)

type (
	// Value is a single scalar field value tagged with its semantic type.
	// Signed values are held sign-extended, floats as their IEEE-754 bits.
	Value struct {
		typ  Type
		bits uint64
	}

	// Values maps field tags to their values.
	Values map[Tag]Value
)

// Int32Value holds v as an int32.
func Int32Value(v int32) Value { return Value{Int32, uint64(int64(v))} }

// Int64Value holds v as an int64.
func Int64Value(v int64) Value { return Value{Int64, uint64(v)} }

// Uint32Value holds v as a uint32.
func Uint32Value(v uint32) Value { return Value{Uint32, uint64(v)} }

// Uint64Value holds v as a uint64.
func Uint64Value(v uint64) Value { return Value{Uint64, v} }

// Sint32Value holds v as a zig-zag encoded int32.
func Sint32Value(v int32) Value { return Value{Sint32, uint64(int64(v))} }

// Sint64Value holds v as a zig-zag encoded int64.
func Sint64Value(v int64) Value { return Value{Sint64, uint64(v)} }

// BoolValue holds v as a bool.
func BoolValue(v bool) Value {
	if v {
		return Value{Bool, 1}
	}
	return Value{Bool, 0}
}

// Float32Value holds v as a float32.
func Float32Value(v float32) Value {
	return Value{Float32, uint64(math.Float32bits(v))}
}

// Fixed32Value holds v as a fixed-width uint32.
func Fixed32Value(v uint32) Value { return Value{Fixed32, uint64(v)} }

// Sfixed32Value holds v as a fixed-width int32.
func Sfixed32Value(v int32) Value {
	return Value{Sfixed32, uint64(int64(v))}
}

// Type returns the semantic type of the value.
func (v Value) Type() Type { return v.typ }

// Int32 returns the value of an Int32, Sint32 or Sfixed32.
func (v Value) Int32() int32 { return int32(int64(v.bits)) }

// Int64 returns the value of an Int64 or Sint64.
func (v Value) Int64() int64 { return int64(v.bits) }

// Uint32 returns the value of a Uint32 or Fixed32.
func (v Value) Uint32() uint32 { return uint32(v.bits) }

// Uint64 returns the value of a Uint64.
func (v Value) Uint64() uint64 { return v.bits }

// Bool returns the value of a Bool.
func (v Value) Bool() bool { return v.bits != 0 }

// Float32 returns the value of a Float32.
func (v Value) Float32() float32 { return math.Float32frombits(uint32(v.bits)) }

func (v Value) String() string {
	switch v.typ {
	case Int32, Sint32, Sfixed32:
		return fmt.Sprintf("%s(%d)", v.typ, v.Int32())
	case Int64, Sint64:
		return fmt.Sprintf("%s(%d)", v.typ, v.Int64())
	case Uint32, Fixed32:
		return fmt.Sprintf("%s(%d)", v.typ, v.Uint32())
	case Uint64:
		return fmt.Sprintf("%s(%d)", v.typ, v.Uint64())
	case Bool:
		return fmt.Sprintf("%s(%t)", v.typ, v.Bool())
	case Float32:
		return fmt.Sprintf("%s(%g)", v.typ, v.Float32())
	default:
		return "invalid"
	}
}
