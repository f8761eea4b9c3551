package storage

import (
	"fmt"
	"strconv"
)

// ValueCodec serializes a façade value type to and from the document's
// textual leaf format.
type ValueCodec[T any] interface {
	Encode(v T) string
	Decode(s string) (T, error)
}

// StringCodec is the identity ValueCodec for string keys/mapped values.
type StringCodec struct{}

func (StringCodec) Encode(v string) string { return v }
func (StringCodec) Decode(s string) (string, error) {
	return s, nil
}

// IntCodec serializes int keys/mapped values as base-10 text.
type IntCodec struct{}

func (IntCodec) Encode(v int) string { return strconv.Itoa(v) }
func (IntCodec) Decode(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("storage: decode int leaf %q: %w", s, err)
	}
	return n, nil
}
