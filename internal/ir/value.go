package ir

import (
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface over the constrained value tree used for
// canonical encoding. There is no float member: hashed structures never
// carry floating point data.
type Value interface {
	irValue()
}

// Null is the JSON null. Canonical encoding rejects it; it exists so a
// Value tree can be built from decoded JSON without losing information.
type Null struct{}

func (Null) irValue() {}

// MarshalJSON implements json.Marshaler.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String is a text value.
type String string

func (String) irValue() {}

// Integer is an integer value.
type Integer int64

func (Integer) irValue() {}

// Boolean is a boolean value.
type Boolean bool

func (Boolean) irValue() {}

// Array is an ordered list of values.
type Array []Value

func (Array) irValue() {}

// Object maps keys to values. Iterate with SortedKeys for determinism.
type Object map[string]Value

func (Object) irValue() {}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units, not bytes).
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}
