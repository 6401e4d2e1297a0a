// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package wire

import (
	"errors"
	"io"
	"math"

	"github.com/tempmesh/tempmesh/internal/options"
	"google.golang.org/protobuf/encoding/protowire"
)

type (
	// DecodeOption represents a single decode option.
	DecodeOption interface{ decode(*DecodeOptions) }

	// DecodeOptions are the resolved decode options.
	DecodeOptions struct {
		RejectUnknown bool
	}

	// WithRejectUnknown fails decoding with UnknownTag when the input carries
	// a tag the schema does not declare. By default such fields are skipped.
	WithRejectUnknown bool
)

// Decode parses b according to the schema. Fields may appear in any order; if
// a tag repeats, the last occurrence wins. Every required field must be
// present once the input is exhausted.
func Decode(s *Schema, b []byte, opt ...DecodeOption) (Values, error) {
	var opts DecodeOptions
	opts.Apply(opt)

	d := decoder{schema: s, buf: b}
	out := make(Values, len(s.fields))

	for d.off < len(d.buf) {
		keyOff := d.off
		num, typ, err := d.key()
		if err != nil {
			return nil, err
		}

		f, known := s.Field(Tag(num))
		if !known {
			if opts.RejectUnknown {
				return nil, d.fail(UnknownTag, keyOff, Tag(num), "", nil)
			}
			if err := d.skip(num, typ); err != nil {
				return nil, err
			}
			continue
		}

		if Kind(typ) != f.Kind {
			return nil, d.fail(WireKindMismatch, keyOff, f.Tag, f.Name, nil)
		}

		v, err := d.value(f)
		if err != nil {
			return nil, err
		}
		out[f.Tag] = v
	}

	for _, f := range s.fields {
		if _, ok := out[f.Tag]; f.Required && !ok {
			return nil, &Error{
				Kind:   MissingRequiredField,
				Schema: s.name,
				Tag:    f.Tag,
				Field:  f.Name,
				Offset: -1,
			}
		}
	}
	return out, nil
}

type decoder struct {
	schema *Schema
	buf    []byte
	off    int
}

func (d *decoder) fail(
	kind ErrorKind,
	off int,
	tag Tag,
	field string,
	nested error,
) *Error {
	return &Error{
		Kind:   kind,
		Schema: d.schema.name,
		Tag:    tag,
		Field:  field,
		Offset: off,
		Nested: nested,
	}
}

func (d *decoder) varint(tag Tag, field string) (uint64, error) {
	v, n := protowire.ConsumeVarint(d.buf[d.off:])
	if n < 0 {
		err := protowire.ParseError(n)
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, d.fail(TruncatedInput, d.off, tag, field, err)
		}
		return 0, d.fail(MalformedVarint, d.off, tag, field, err)
	}
	d.off += n
	return v, nil
}

func (d *decoder) key() (protowire.Number, protowire.Type, error) {
	off := d.off
	k, err := d.varint(0, "")
	if err != nil {
		return 0, 0, err
	}
	num, typ := protowire.DecodeTag(k)
	if num < protowire.MinValidNumber || num > protowire.MaxValidNumber {
		e := d.fail(MalformedField, off, 0, "", nil)
		e.Message = "invalid field number"
		return 0, 0, e
	}
	return num, typ, nil
}

func (d *decoder) skip(num protowire.Number, typ protowire.Type) error {
	n := protowire.ConsumeFieldValue(num, typ, d.buf[d.off:])
	if n < 0 {
		err := protowire.ParseError(n)
		switch {
		case errors.Is(err, io.ErrUnexpectedEOF):
			return d.fail(TruncatedInput, d.off, Tag(num), "", err)
		case typ == protowire.VarintType:
			return d.fail(MalformedVarint, d.off, Tag(num), "", err)
		default:
			return d.fail(MalformedField, d.off, Tag(num), "", err)
		}
	}
	d.off += n
	return nil
}

func (d *decoder) value(f Field) (Value, error) {
	off := d.off

	if f.Kind == Fixed32Kind {
		u, n := protowire.ConsumeFixed32(d.buf[d.off:])
		if n < 0 {
			err := protowire.ParseError(n)
			return Value{}, d.fail(TruncatedInput, off, f.Tag, f.Name, err)
		}
		d.off += n
		if f.Type == Sfixed32 {
			return Sfixed32Value(int32(u)), nil
		}
		return Value{f.Type, uint64(u)}, nil
	}

	v, err := d.varint(f.Tag, f.Name)
	if err != nil {
		return Value{}, err
	}

	inRange := true
	switch f.Type {
	case Int32:
		// Negative values must be sign-extended to 64 bits; the 5-byte
		// 32-bit form some encoders emit is rejected.
		i := int64(v)
		inRange = i >= math.MinInt32 && i <= math.MaxInt32
	case Uint32:
		inRange = v <= math.MaxUint32
	case Sint32:
		z := protowire.DecodeZigZag(v)
		inRange = z >= math.MinInt32 && z <= math.MaxInt32
		v = uint64(z)
	case Sint64:
		v = uint64(protowire.DecodeZigZag(v))
	case Bool:
		inRange = v <= 1
	}
	if !inRange {
		return Value{}, d.fail(ValueOutOfRange, off, f.Tag, f.Name, nil)
	}
	return Value{f.Type, v}, nil
}

// Apply resolves the provided list of options.
func (o *DecodeOptions) Apply(
	opts []DecodeOption,
	rest ...DecodeOption,
) {
	for opt := range options.Apply[DecodeOption](opts, rest...) {
		opt.decode(o)
	}
}

func (o *DecodeOptions) decode(opt *DecodeOptions) {
	if o != nil {
		*opt = *o
	}
}

func (o WithRejectUnknown) decode(opt *DecodeOptions) {
	opt.RejectUnknown = bool(o)
}
