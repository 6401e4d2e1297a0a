// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package wire implements the compact tagged-field binary format used for
// sensor messages. Each field on the wire is a varint key packing the field's
// tag and wire kind, followed by the payload for that kind.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

type (
	// Tag identifies a field on the wire.
	Tag int32

	// Kind is the physical encoding family of a field's payload. The values
	// are the codes packed into the low three bits of a field key.
	Kind uint8

	// Type is the semantic type of a field, which governs how its payload is
	// interpreted.
	Type uint8

	// Field describes one scalar field of a message.
	Field struct {
		Tag      Tag
		Name     string
		Kind     Kind
		Type     Type
		Required bool
	}

	// Schema is an immutable, validated list of fields. Encoding follows the
	// order in which the fields were declared.
	Schema struct {
		name   string
		fields []Field
		byTag  map[Tag]int
	}
)

// Wire kinds.
const (
	VarintKind  Kind = Kind(protowire.VarintType)
	Fixed32Kind Kind = Kind(protowire.Fixed32Type)
)

// Semantic types.
const (
	invalidType Type = iota
	Int32
	Int64
	Uint32
	Uint64
	Sint32
	Sint64
	Bool
	Float32
	Fixed32
	Sfixed32
)

// Valid tag range.
const (
	MinTag Tag = Tag(protowire.MinValidNumber)
	MaxTag Tag = Tag(protowire.MaxValidNumber)
)

// Kind returns the wire kind the type is carried in, or false if the type is
// not one the codec implements.
func (t Type) Kind() (Kind, bool) {
	switch t {
	case Int32, Int64, Uint32, Uint64, Sint32, Sint64, Bool:
		return VarintKind, true
	case Float32, Fixed32, Sfixed32:
		return Fixed32Kind, true
	default:
		return 0, false
	}
}

func (t Type) String() string {
	switch t {
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint32:
		return "uint32"
	case Uint64:
		return "uint64"
	case Sint32:
		return "sint32"
	case Sint64:
		return "sint64"
	case Bool:
		return "bool"
	case Float32:
		return "float32"
	case Fixed32:
		return "fixed32"
	case Sfixed32:
		return "sfixed32"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

func (k Kind) String() string {
	switch k {
	case VarintKind:
		return "varint"
	case Fixed32Kind:
		return "fixed32"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// NewSchema validates the fields and builds a schema. Tags must be unique and
// in range, and each field's kind must be the one its type is carried in.
func NewSchema(name string, fields ...Field) (*Schema, error) {
	s := &Schema{
		name:   name,
		fields: make([]Field, len(fields)),
		byTag:  make(map[Tag]int, len(fields)),
	}
	copy(s.fields, fields)

	for i, f := range s.fields {
		if f.Tag < MinTag || f.Tag > MaxTag {
			return nil, &Error{
				Kind:    InvalidSchema,
				Message: "tag out of range",
				Schema:  name,
				Tag:     f.Tag,
				Field:   f.Name,
				Offset:  -1,
			}
		}
		if _, ok := s.byTag[f.Tag]; ok {
			return nil, &Error{
				Kind:    InvalidSchema,
				Message: "duplicate tag",
				Schema:  name,
				Tag:     f.Tag,
				Field:   f.Name,
				Offset:  -1,
			}
		}
		if k, ok := f.Type.Kind(); !ok || k != f.Kind {
			return nil, &Error{
				Kind: UnsupportedFieldKind,
				Message: fmt.Sprintf(
					"unsupported field kind %s/%s", f.Kind, f.Type,
				),
				Schema: name,
				Tag:    f.Tag,
				Field:  f.Name,
				Offset: -1,
			}
		}
		s.byTag[f.Tag] = i
	}

	return s, nil
}

// MustSchema is NewSchema for package-level schema declarations; it panics on
// an invalid schema.
func MustSchema(name string, fields ...Field) *Schema {
	s, err := NewSchema(name, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the message name the schema was declared with.
func (s *Schema) Name() string {
	return s.name
}

// Fields returns a copy of the fields in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field looks up a field by tag.
func (s *Schema) Field(tag Tag) (Field, bool) {
	i, ok := s.byTag[tag]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}
