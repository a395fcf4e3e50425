// Package codec defines the attribute-map serialization contract. The store
// treats session attributes as an opaque byte payload; codecs live entirely
// on the caller's side of that boundary.
package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Codec converts a session attribute map to and from its persisted form.
type Codec interface {
	Encode(attributes map[string]any) ([]byte, error)
	Decode(payload []byte) (map[string]any, error)
}

// Gob is the default Codec. Callers storing concrete attribute types must
// register them with gob.Register before encoding.
type Gob struct{}

// Encode serializes the attribute map. A nil map encodes as an empty map.
func (Gob) Encode(attributes map[string]any) ([]byte, error) {
	if attributes == nil {
		attributes = map[string]any{}
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(attributes); err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode deserializes a payload produced by Encode. An empty payload decodes
// as an empty map.
func (Gob) Decode(payload []byte) (map[string]any, error) {
	if len(payload) == 0 {
		return map[string]any{}, nil
	}
	attributes := map[string]any{}
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&attributes); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	return attributes, nil
}

var _ Codec = Gob{}
