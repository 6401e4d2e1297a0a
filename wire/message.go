// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package wire

// Message is a typed message with a static schema.
type Message interface {
	// Schema returns the message's schema. It must not depend on the
	// receiver's contents.
	Schema() *Schema

	// Fields returns the message's current field values.
	Fields() Values

	// SetFields replaces the message's contents with decoded values.
	SetFields(Values) error
}

// Marshal encodes a typed message.
func Marshal(m Message) ([]byte, error) {
	return Encode(m.Schema(), m.Fields())
}

// Unmarshal decodes b into a typed message.
func Unmarshal(b []byte, m Message, opt ...DecodeOption) error {
	v, err := Decode(m.Schema(), b, opt...)
	if err != nil {
		return err
	}
	return m.SetFields(v)
}
