package ident

import (
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface over the value kinds that may take part in an
// identity: Str, Int, Bool, List and Object. There is deliberately no float.
type Value interface {
	identValue()
}

// Str is a string value.
type Str string

func (Str) identValue() {}

// Int is an integer value.
type Int int64

func (Int) identValue() {}

// Bool is a boolean value.
type Bool bool

func (Bool) identValue() {}

// List is an ordered sequence of values.
type List []Value

func (List) identValue() {}

// Object maps keys to values. Use SortedKeys for deterministic iteration.
type Object map[string]Value

func (Object) identValue() {}

// Uints builds a List of Int from unsigned ids, preserving order.
func Uints(ids []uint64) List {
	out := make(List, len(ids))
	for i, id := range ids {
		out[i] = Int(int64(id))
	}
	return out
}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
// Go's native string ordering compares UTF-8 bytes and differs for
// characters outside the BMP.
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
