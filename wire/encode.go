// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package wire

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Encode serializes values according to the schema. Fields are written in
// schema order, so equal inputs always produce identical bytes. Optional fields
// without a value are omitted.
func Encode(s *Schema, v Values) ([]byte, error) {
	for tag := range v {
		if _, ok := s.byTag[tag]; !ok {
			return nil, &Error{
				Kind:   UnknownTag,
				Schema: s.name,
				Tag:    tag,
				Offset: -1,
			}
		}
	}

	// Largest field: 5-byte key plus a 10-byte varint.
	buf := make([]byte, 0, len(s.fields)*15)
	for _, f := range s.fields {
		val, ok := v[f.Tag]
		if !ok {
			if f.Required {
				return nil, &Error{
					Kind:   MissingRequiredField,
					Schema: s.name,
					Tag:    f.Tag,
					Field:  f.Name,
					Offset: -1,
				}
			}
			continue
		}
		if val.typ != f.Type {
			return nil, &Error{
				Kind: TypeMismatch,
				Message: fmt.Sprintf(
					"%s value for %s field", val.typ, f.Type,
				),
				Schema: s.name,
				Tag:    f.Tag,
				Field:  f.Name,
				Offset: -1,
			}
		}

		var err error
		if buf, err = appendField(buf, f, val); err != nil {
			e := err.(*Error)
			e.Schema = s.name
			return nil, e
		}
	}
	return buf, nil
}

func appendField(b []byte, f Field, v Value) ([]byte, error) {
	num := protowire.Number(f.Tag)
	switch f.Type {
	case Int32, Int64, Uint32, Uint64, Bool:
		b = protowire.AppendTag(b, num, protowire.VarintType)
		return protowire.AppendVarint(b, v.bits), nil
	case Sint32, Sint64:
		b = protowire.AppendTag(b, num, protowire.VarintType)
		return protowire.AppendVarint(
			b, protowire.EncodeZigZag(int64(v.bits)),
		), nil
	case Float32, Fixed32, Sfixed32:
		b = protowire.AppendTag(b, num, protowire.Fixed32Type)
		return protowire.AppendFixed32(b, uint32(v.bits&math.MaxUint32)), nil
	default:
		return nil, &Error{
			Kind:   UnsupportedFieldKind,
			Tag:    f.Tag,
			Field:  f.Name,
			Offset: -1,
		}
	}
}
